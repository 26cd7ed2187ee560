package jpeg

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Decode or Encode wraps exactly one of
// these, so callers can classify failures with errors.Is.
var (
	// ErrMalformedSignature means the stream does not start with SOI.
	ErrMalformedSignature = errors.New("jpeg: missing start-of-image marker")
	// ErrCorrupted covers truncated or invalid segments and entropy data.
	ErrCorrupted = errors.New("jpeg: corrupted stream")
	// ErrOversized means the frame is larger than the configured limits.
	ErrOversized = errors.New("jpeg: image exceeds configured size limit")
	// ErrPrematureEOI is reported through PixelData.Truncated, never returned by Decode.
	ErrPrematureEOI = errors.New("jpeg: premature end of image")
	// ErrUnsupportedProcess is a frame header outside baseline, extended and lossless.
	ErrUnsupportedProcess = errors.New("jpeg: unsupported coding process")
	// ErrInvalidPixelData is returned by Encode for inconsistent input.
	ErrInvalidPixelData = errors.New("jpeg: invalid pixel data")
)

// FormatError carries the marker and byte offset at which decoding failed.
type FormatError struct {
	Kind   error
	Marker Marker
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Marker != 0 {
		return fmt.Sprintf("%v: %s (marker %s at offset %d)", e.Kind, e.Msg, e.Marker, e.Offset)
	}
	return fmt.Sprintf("%v: %s (offset %d)", e.Kind, e.Msg, e.Offset)
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}

func corrupted(m Marker, offset int64, format string, args ...any) error {
	return &FormatError{Kind: ErrCorrupted, Marker: m, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

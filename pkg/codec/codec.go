// Package codec binds the JPEG engine to DICOM transfer syntaxes.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/jpfielding/dcmjpeg.go/pkg/codec/transfer"
	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
)

// Codec is the interface for pixel data compression codecs.
type Codec interface {
	// Encode compresses pd and writes the JPEG stream to w
	Encode(w io.Writer, pd *jpeg.PixelData) error
	// Decode decompresses a JPEG stream. opts may be nil.
	Decode(data []byte, opts *jpeg.DecodeOptions) (*jpeg.PixelData, error)
	// Name returns the codec name (e.g., "jpeg-li", "jpeg-baseline")
	Name() string
	// TransferSyntax returns the DICOM Transfer Syntax the codec writes
	TransferSyntax() transfer.Syntax
}

// JPEG is a Codec backed by the engine with fixed encode options.
type JPEG struct {
	name    string
	syntax  transfer.Syntax
	options jpeg.EncodeOptions
}

// NewJPEG returns a codec for syntax. The process is taken from the syntax,
// overriding opts.Process.
func NewJPEG(name string, syntax transfer.Syntax, opts jpeg.EncodeOptions) (*JPEG, error) {
	p, ok := syntax.Process()
	if !ok {
		return nil, fmt.Errorf("codec: %s is not a JPEG transfer syntax", syntax.Name())
	}
	opts.Process = p
	return &JPEG{name: name, syntax: syntax, options: opts}, nil
}

func mustJPEG(name string, syntax transfer.Syntax, opts jpeg.EncodeOptions) *JPEG {
	c, err := NewJPEG(name, syntax, opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *JPEG) Name() string                    { return c.name }
func (c *JPEG) TransferSyntax() transfer.Syntax { return c.syntax }

// Options returns a copy of the encode options.
func (c *JPEG) Options() jpeg.EncodeOptions { return c.options }

// With returns a codec of the same syntax using opts.
func (c *JPEG) With(opts jpeg.EncodeOptions) *JPEG {
	opts.Process = c.options.Process
	return &JPEG{name: c.name, syntax: c.syntax, options: opts}
}

func (c *JPEG) Encode(w io.Writer, pd *jpeg.PixelData) error {
	opts := c.options
	return jpeg.Encode(w, pd, &opts)
}

func (c *JPEG) Decode(data []byte, opts *jpeg.DecodeOptions) (*jpeg.PixelData, error) {
	pd, err := jpeg.Decode(bytes.NewReader(data), opts)
	if err != nil {
		return nil, err
	}
	if !c.syntax.Accepts(pd.Process) {
		slog.Warn("codec: stream process does not match transfer syntax",
			slog.String("codec", c.name),
			slog.String("syntax", string(c.syntax)),
			slog.String("process", pd.Process.String()))
	}
	return pd, nil
}

// Predefined codecs
var (
	// CodecBaseline is JPEG Process 1, 8-bit lossy
	CodecBaseline = mustJPEG("jpeg-baseline", transfer.JPEGBaseline, jpeg.EncodeOptions{})
	// CodecExtended is JPEG Process 2 & 4, 8 to 12-bit lossy
	CodecExtended = mustJPEG("jpeg-extended", transfer.JPEGExtended, jpeg.EncodeOptions{})
	// CodecLossless is JPEG Process 14 with any predictor
	CodecLossless = mustJPEG("jpeg-lossless", transfer.JPEGLossless, jpeg.EncodeOptions{Predictor: 6})
	// CodecJPEGLi is JPEG Process 14, selection value 1
	CodecJPEGLi = mustJPEG("jpeg-li", transfer.JPEGLosslessFirstOrder, jpeg.EncodeOptions{})
)

var codecsByName = map[string]Codec{
	"jpeg-baseline": CodecBaseline,
	"jpeg-extended": CodecExtended,
	"jpeg-lossless": CodecLossless,
	"jpeg-li":       CodecJPEGLi,
}

var codecsByTS = map[transfer.Syntax]Codec{
	transfer.JPEGBaseline:           CodecBaseline,
	transfer.JPEGExtended:           CodecExtended,
	transfer.JPEGLossless:           CodecLossless,
	transfer.JPEGLosslessFirstOrder: CodecJPEGLi,
}

// CodecByName returns a codec by name, or nil if not found
func CodecByName(name string) Codec {
	return codecsByName[name]
}

// CodecByTransferSyntax returns a codec for the given transfer syntax UID
func CodecByTransferSyntax(ts transfer.Syntax) Codec {
	return codecsByTS[ts]
}

// Names returns the registered codec names, sorted.
func Names() []string {
	names := make([]string, 0, len(codecsByName))
	for n := range codecsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

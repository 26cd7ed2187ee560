// Package transfer defines the DICOM transfer syntaxes of the JPEG family
// and maps them to coding processes.
package transfer

import "github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"

// Syntax represents a DICOM Transfer Syntax UID
type Syntax string

const (
	// Native pixel data
	ImplicitVRLittleEndian Syntax = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian Syntax = "1.2.840.10008.1.2.1"

	// JPEG lossy
	JPEGBaseline Syntax = "1.2.840.10008.1.2.4.50" // Process 1
	JPEGExtended Syntax = "1.2.840.10008.1.2.4.51" // Processes 2 & 4

	// JPEG lossless
	JPEGLossless           Syntax = "1.2.840.10008.1.2.4.57" // Process 14
	JPEGLosslessFirstOrder Syntax = "1.2.840.10008.1.2.4.70" // Process 14, SV1. Most common
)

// All lists the JPEG-family syntaxes in UID order.
var All = []Syntax{JPEGBaseline, JPEGExtended, JPEGLossless, JPEGLosslessFirstOrder}

// IsEncapsulated returns true if pixel data is encapsulated (compressed)
func (s Syntax) IsEncapsulated() bool {
	return s != ImplicitVRLittleEndian && s != ExplicitVRLittleEndian
}

// IsJPEGLossless returns true if this is a JPEG Lossless transfer syntax
func (s Syntax) IsJPEGLossless() bool {
	return s == JPEGLossless || s == JPEGLosslessFirstOrder
}

// IsJPEGLossy returns true for the DCT-based syntaxes
func (s Syntax) IsJPEGLossy() bool {
	return s == JPEGBaseline || s == JPEGExtended
}

// Process returns the coding process written for s.
func (s Syntax) Process() (jpeg.Process, bool) {
	switch s {
	case JPEGBaseline:
		return jpeg.ProcessBaseline, true
	case JPEGExtended:
		return jpeg.ProcessExtended, true
	case JPEGLossless:
		return jpeg.ProcessLossless, true
	case JPEGLosslessFirstOrder:
		return jpeg.ProcessLosslessFirstOrder, true
	}
	return 0, false
}

// Accepts reports whether a stream coded with p is valid under s. The
// general lossless syntax admits first-order prediction too.
func (s Syntax) Accepts(p jpeg.Process) bool {
	if s == JPEGLossless {
		return p.Lossless()
	}
	want, ok := s.Process()
	return ok && want == p
}

// ForProcess returns the narrowest syntax describing a stream coded with p.
func ForProcess(p jpeg.Process) Syntax {
	switch p {
	case jpeg.ProcessBaseline:
		return JPEGBaseline
	case jpeg.ProcessExtended:
		return JPEGExtended
	case jpeg.ProcessLosslessFirstOrder:
		return JPEGLosslessFirstOrder
	default:
		return JPEGLossless
	}
}

// Name returns a human-readable name for the transfer syntax
func (s Syntax) Name() string {
	switch s {
	case ImplicitVRLittleEndian:
		return "Implicit VR Little Endian"
	case ExplicitVRLittleEndian:
		return "Explicit VR Little Endian"
	case JPEGBaseline:
		return "JPEG Baseline (Process 1)"
	case JPEGExtended:
		return "JPEG Extended (Process 2 & 4)"
	case JPEGLossless:
		return "JPEG Lossless (Process 14)"
	case JPEGLosslessFirstOrder:
		return "JPEG Lossless First-Order (Process 14, SV1)"
	default:
		return string(s)
	}
}

// FromUID converts a UID string to a Syntax, trimming the NUL or space
// padding DICOM uses for odd-length values.
func FromUID(uid string) Syntax {
	for len(uid) > 0 && (uid[len(uid)-1] == 0 || uid[len(uid)-1] == ' ') {
		uid = uid[:len(uid)-1]
	}
	return Syntax(uid)
}

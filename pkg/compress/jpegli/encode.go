// Package jpegli reads and writes JPEG Lossless (Process 14) images through
// the image package.
package jpegli

import (
	"image"
	"io"

	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
)

// Encoder encodes images to JPEG Lossless format
type Encoder struct {
	// Predictor selection (1-7, default 1)
	Predictor int
	// Point transform (0 for lossless)
	PointTransform int
	// RestartInterval in MCUs, 0 disables restart markers
	RestartInterval int
	// Comment is written as a COM segment when not empty
	Comment string
}

func (e *Encoder) options() *jpeg.EncodeOptions {
	opts := &jpeg.EncodeOptions{Process: jpeg.ProcessLosslessFirstOrder}
	if e == nil {
		return opts
	}
	if e.Predictor > 1 && e.Predictor <= 7 {
		opts.Process = jpeg.ProcessLossless
		opts.Predictor = e.Predictor
	}
	opts.PointTransform = e.PointTransform
	opts.RestartInterval = e.RestartInterval
	opts.Comment = e.Comment
	return opts
}

// Encode writes img to w in JPEG Lossless format. Gray and Gray16 keep their
// depth and RGB images are coded as three 8-bit components. Subsampled YCbCr
// is rejected; other models are converted to 16-bit gray.
func Encode(w io.Writer, img image.Image, opts *Encoder) error {
	pd, err := jpeg.FromImage(img)
	if err != nil {
		return err
	}
	return EncodePixelData(w, pd, opts)
}

// EncodePixelData writes pd to w in JPEG Lossless format.
func EncodePixelData(w io.Writer, pd *jpeg.PixelData, opts *Encoder) error {
	return jpeg.Encode(w, pd, opts.options())
}

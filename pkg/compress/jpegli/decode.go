package jpegli

import (
	"fmt"
	"image"
	"io"

	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
)

// Decode reads a JPEG Lossless image from r.
func Decode(r io.Reader) (image.Image, error) {
	pd, err := DecodePixelData(r, false)
	if err != nil {
		return nil, err
	}
	return jpeg.ToImage(pd)
}

// DecodePixelData reads a JPEG Lossless stream from r, failing on DCT
// streams. signed sign-extends samples to the frame precision.
func DecodePixelData(r io.Reader, signed bool) (*jpeg.PixelData, error) {
	pd, err := jpeg.Decode(r, &jpeg.DecodeOptions{Signed: signed})
	if err != nil {
		return nil, err
	}
	if !pd.Process.Lossless() {
		return nil, fmt.Errorf("jpegli: %s stream is not lossless: %w", pd.Process, jpeg.ErrUnsupportedProcess)
	}
	return pd, nil
}

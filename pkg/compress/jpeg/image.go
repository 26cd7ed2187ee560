package jpeg

import (
	"fmt"
	"image"
	"image/color"
)

var subsampleRatios = map[[2]int]image.YCbCrSubsampleRatio{
	{1, 1}: image.YCbCrSubsampleRatio444,
	{2, 1}: image.YCbCrSubsampleRatio422,
	{2, 2}: image.YCbCrSubsampleRatio420,
	{1, 2}: image.YCbCrSubsampleRatio440,
	{4, 1}: image.YCbCrSubsampleRatio411,
	{4, 2}: image.YCbCrSubsampleRatio410,
}

// ToImage converts decoded pixel data to an image. One plane becomes Gray or
// Gray16 depending on precision; three lossy planes become YCbCr; three
// lossless planes are taken as RGB. Signed samples are offset to unsigned.
func ToImage(pd *PixelData) (image.Image, error) {
	rect := image.Rect(0, 0, pd.Width, pd.Height)
	var offset int32
	if pd.Signed {
		offset = 1 << (pd.Precision - 1)
	}
	switch len(pd.Planes) {
	case 1:
		p := &pd.Planes[0]
		if pd.Precision <= 8 {
			img := image.NewGray(rect)
			for i, v := range p.Samples {
				img.Pix[i] = uint8(v + offset)
			}
			return img, nil
		}
		img := image.NewGray16(rect)
		for i, v := range p.Samples {
			u := uint16(v + offset)
			img.Pix[2*i], img.Pix[2*i+1] = uint8(u>>8), uint8(u)
		}
		return img, nil
	case 3:
		if pd.Process.Lossless() {
			return toRGB(pd, rect, offset)
		}
		if pd.Precision != 8 {
			return nil, fmt.Errorf("jpeg: %d-bit YCbCr has no image representation", pd.Precision)
		}
		y, cb, cr := &pd.Planes[0], &pd.Planes[1], &pd.Planes[2]
		ratio, ok := subsampleRatios[[2]int{y.H, y.V}]
		if !ok || cb.H != 1 || cb.V != 1 || cr.H != 1 || cr.V != 1 {
			return nil, fmt.Errorf("jpeg: sampling %dx%d,%dx%d,%dx%d has no YCbCr layout", y.H, y.V, cb.H, cb.V, cr.H, cr.V)
		}
		img := image.NewYCbCr(rect, ratio)
		for i, v := range y.Samples {
			img.Y[i] = uint8(v + offset)
		}
		for i := range cb.Samples {
			img.Cb[i] = uint8(cb.Samples[i] + offset)
			img.Cr[i] = uint8(cr.Samples[i] + offset)
		}
		return img, nil
	}
	return nil, fmt.Errorf("jpeg: %d planes have no image representation", len(pd.Planes))
}

func toRGB(pd *PixelData, rect image.Rectangle, offset int32) (image.Image, error) {
	r, g, b := &pd.Planes[0], &pd.Planes[1], &pd.Planes[2]
	for _, p := range pd.Planes {
		if p.Width != pd.Width || p.Height != pd.Height {
			return nil, fmt.Errorf("jpeg: RGB planes must not be subsampled")
		}
	}
	if pd.Precision <= 8 {
		img := image.NewRGBA(rect)
		for i := range r.Samples {
			img.Pix[4*i+0] = uint8(r.Samples[i] + offset)
			img.Pix[4*i+1] = uint8(g.Samples[i] + offset)
			img.Pix[4*i+2] = uint8(b.Samples[i] + offset)
			img.Pix[4*i+3] = 0xFF
		}
		return img, nil
	}
	img := image.NewRGBA64(rect)
	for i := range r.Samples {
		for j, v := range [3]int32{r.Samples[i], g.Samples[i], b.Samples[i]} {
			u := uint16(v + offset)
			img.Pix[8*i+2*j], img.Pix[8*i+2*j+1] = uint8(u>>8), uint8(u)
		}
		img.Pix[8*i+6], img.Pix[8*i+7] = 0xFF, 0xFF
	}
	return img, nil
}

// FromImage converts an image to unsigned pixel data. Gray, Gray16 and
// YCbCr keep their layout; RGBA and NRGBA become three full-resolution 8-bit
// planes; anything else is converted to 16-bit gray.
func FromImage(img image.Image) (*PixelData, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidPixelData)
	}
	switch m := img.(type) {
	case *image.Gray:
		pd := NewPixelData(w, h, 8, 1, false, false)
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride:]
			for x := 0; x < w; x++ {
				pd.Planes[0].Samples[y*w+x] = int32(row[x])
			}
		}
		return pd, nil
	case *image.Gray16:
		pd := NewPixelData(w, h, 16, 1, false, false)
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride:]
			for x := 0; x < w; x++ {
				pd.Planes[0].Samples[y*w+x] = int32(row[2*x])<<8 | int32(row[2*x+1])
			}
		}
		return pd, nil
	case *image.YCbCr:
		return fromYCbCr(m)
	case *image.RGBA, *image.NRGBA:
		pd := NewPixelData(w, h, 8, 3, false, false)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				pd.Planes[0].Samples[y*w+x] = int32(c.R)
				pd.Planes[1].Samples[y*w+x] = int32(c.G)
				pd.Planes[2].Samples[y*w+x] = int32(c.B)
			}
		}
		return pd, nil
	}
	pd := NewPixelData(w, h, 16, 1, false, false)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			pd.Planes[0].Samples[y*w+x] = int32(c.Y)
		}
	}
	return pd, nil
}

func fromYCbCr(m *image.YCbCr) (*PixelData, error) {
	var hv [2]int
	found := false
	for k, r := range subsampleRatios {
		if r == m.SubsampleRatio {
			hv, found = k, true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: subsample ratio %v", ErrInvalidPixelData, m.SubsampleRatio)
	}
	b := m.Rect
	w, h := b.Dx(), b.Dy()
	pd := &PixelData{Width: w, Height: h, Precision: 8}
	pd.Planes = []Plane{
		{ID: 1, H: hv[0], V: hv[1], Width: w, Height: h},
		{ID: 2, H: 1, V: 1, Width: ceilDiv(w, hv[0]), Height: ceilDiv(h, hv[1])},
		{ID: 3, H: 1, V: 1, Width: ceilDiv(w, hv[0]), Height: ceilDiv(h, hv[1])},
	}
	for i := range pd.Planes {
		p := &pd.Planes[i]
		p.Samples = make([]int32, p.Width*p.Height)
		src, stride := m.Y, m.YStride
		switch i {
		case 1:
			src, stride = m.Cb, m.CStride
		case 2:
			src, stride = m.Cr, m.CStride
		}
		off := m.YOffset(b.Min.X, b.Min.Y)
		if i > 0 {
			off = m.COffset(b.Min.X, b.Min.Y)
		}
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				p.Samples[y*p.Width+x] = int32(src[off+y*stride+x])
			}
		}
	}
	return pd, nil
}

package jpeg

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_GrayRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
	}{
		{"gray", func() image.Image {
			g := image.NewGray(image.Rect(0, 0, 21, 13))
			for i := range g.Pix {
				g.Pix[i] = uint8(i * 7)
			}
			return g
		}()},
		{"gray16", func() image.Image {
			g := image.NewGray16(image.Rect(0, 0, 9, 17))
			for y := 0; y < 17; y++ {
				for x := 0; x < 9; x++ {
					g.SetGray16(x, y, color.Gray16{Y: uint16(x*4099 + y*977)})
				}
			}
			return g
		}()},
		{"rgba", func() image.Image {
			m := image.NewRGBA(image.Rect(0, 0, 5, 4))
			for i := range m.Pix {
				m.Pix[i] = uint8(i * 13)
				if i%4 == 3 {
					m.Pix[i] = 0xFF
				}
			}
			return m
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd, err := FromImage(tt.img)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, pd, &EncodeOptions{Process: ProcessLossless}))
			got, err := Decode(&buf, nil)
			require.NoError(t, err)
			img, err := ToImage(got)
			require.NoError(t, err)
			assert.Equal(t, tt.img, img)
		})
	}
}

func TestImage_YCbCrLayouts(t *testing.T) {
	ratios := []image.YCbCrSubsampleRatio{
		image.YCbCrSubsampleRatio444,
		image.YCbCrSubsampleRatio422,
		image.YCbCrSubsampleRatio420,
		image.YCbCrSubsampleRatio440,
		image.YCbCrSubsampleRatio411,
		image.YCbCrSubsampleRatio410,
	}
	for _, ratio := range ratios {
		t.Run(ratio.String(), func(t *testing.T) {
			src := image.NewYCbCr(image.Rect(0, 0, 30, 18), ratio)
			for i := range src.Y {
				src.Y[i] = uint8(64 + i%96)
			}
			for i := range src.Cb {
				src.Cb[i], src.Cr[i] = 120, 136
			}
			pd, err := FromImage(src)
			require.NoError(t, err)
			require.NoError(t, pd.validate())

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, pd, nil))
			got, err := Decode(&buf, nil)
			require.NoError(t, err)
			img, err := ToImage(got)
			require.NoError(t, err)

			out, ok := img.(*image.YCbCr)
			require.True(t, ok)
			assert.Equal(t, ratio, out.SubsampleRatio)
			assert.Equal(t, src.Rect, out.Rect)
			assert.Len(t, out.Cb, len(src.Cb))
			for i := range src.Cb {
				require.InDelta(t, src.Cb[i], out.Cb[i], 2)
			}
		})
	}
}

func TestToImage_Signed(t *testing.T) {
	pd := &PixelData{Width: 2, Height: 1, Precision: 16, Signed: true, Planes: []Plane{
		{ID: 1, H: 1, V: 1, Width: 2, Height: 1, Samples: []int32{-32768, 32767}},
	}}
	img, err := ToImage(pd)
	require.NoError(t, err)
	g := img.(*image.Gray16)
	assert.Equal(t, uint16(0), g.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(0xFFFF), g.Gray16At(1, 0).Y)
}

func TestToImage_Unsupported(t *testing.T) {
	_, err := ToImage(NewPixelData(4, 4, 8, 2, false, false))
	assert.Error(t, err)

	pd := NewPixelData(4, 4, 12, 3, true, true)
	_, err = ToImage(pd)
	assert.Error(t, err, "12-bit YCbCr")
}

func TestFromImage_FallbackIsGray16(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	src.SetColorIndex(1, 1, 1)
	pd, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 16, pd.Precision)
	assert.Equal(t, []int32{0, 0, 0, 0xFFFF}, pd.Planes[0].Samples)
}

func TestNewPixelData(t *testing.T) {
	pd := NewPixelData(33, 17, 8, 3, true, true)
	require.Len(t, pd.Planes, 3)
	assert.Equal(t, [2]int{2, 2}, [2]int{pd.Planes[0].H, pd.Planes[0].V})
	assert.Equal(t, 33, pd.Planes[0].Width)
	assert.Equal(t, 17, pd.Planes[1].Width)
	assert.Equal(t, 9, pd.Planes[2].Height)
	assert.NoError(t, pd.validate())

	pd = NewPixelData(10, 10, 16, 1, true, true)
	assert.Equal(t, 1, pd.Planes[0].H, "a single plane is never subsampled")
}

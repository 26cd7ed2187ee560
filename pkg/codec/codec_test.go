package codec

import (
	"bytes"
	"testing"

	"github.com/jpfielding/dcmjpeg.go/pkg/codec/transfer"
	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient returns a single-plane image with a gradient pattern
func gradient(rows, cols, precision int) *jpeg.PixelData {
	pd := jpeg.NewPixelData(cols, rows, precision, 1, false, false)
	mask := int32(1)<<precision - 1
	for i := range pd.Planes[0].Samples {
		pd.Planes[0].Samples[i] = int32(i) & mask
	}
	return pd
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c := CodecByName(name)
			require.NotNil(t, c)
			assert.Equal(t, name, c.Name())
			assert.Same(t, c, CodecByTransferSyntax(c.TransferSyntax()))
		})
	}
	assert.Len(t, Names(), len(transfer.All))
	assert.Nil(t, CodecByName("jpeg-ls"))
	assert.Nil(t, CodecByTransferSyntax(transfer.ExplicitVRLittleEndian))
}

func TestNewJPEG(t *testing.T) {
	c, err := NewJPEG("custom", transfer.JPEGLossless, jpeg.EncodeOptions{Process: jpeg.ProcessBaseline, Predictor: 3})
	require.NoError(t, err)
	assert.Equal(t, jpeg.ProcessLossless, c.Options().Process)
	assert.Equal(t, 3, c.Options().Predictor)

	_, err = NewJPEG("raw", transfer.ExplicitVRLittleEndian, jpeg.EncodeOptions{})
	assert.Error(t, err)

	w := CodecBaseline.With(jpeg.EncodeOptions{Process: jpeg.ProcessLossless, Quality: 50})
	assert.Equal(t, jpeg.ProcessBaseline, w.Options().Process)
	assert.Equal(t, 50, w.Options().Quality)
	assert.Equal(t, 0, CodecBaseline.Options().Quality)
}

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		codec     Codec
		precision int
		process   jpeg.Process
	}{
		{CodecJPEGLi, 16, jpeg.ProcessLosslessFirstOrder},
		{CodecLossless, 12, jpeg.ProcessLossless},
		{CodecLossless, 8, jpeg.ProcessLossless},
	}
	for _, tt := range tests {
		t.Run(tt.codec.Name(), func(t *testing.T) {
			pd := gradient(32, 48, tt.precision)
			var buf bytes.Buffer
			require.NoError(t, tt.codec.Encode(&buf, pd))

			got, err := tt.codec.Decode(buf.Bytes(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.process, got.Process)
			assert.True(t, tt.codec.TransferSyntax().Accepts(got.Process))
			assert.Equal(t, pd.Planes[0].Samples, got.Planes[0].Samples)
		})
	}
}

func TestCodec_DecodeMismatchedSyntax(t *testing.T) {
	pd := gradient(16, 16, 12)
	var buf bytes.Buffer
	require.NoError(t, CodecLossless.Encode(&buf, pd))

	// a predictor 6 stream filed under .70 still decodes
	got, err := CodecJPEGLi.Decode(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, jpeg.ProcessLossless, got.Process)
	assert.Equal(t, pd.Planes[0].Samples, got.Planes[0].Samples)
}

func TestCodec_LossyRejectsPrecision(t *testing.T) {
	var buf bytes.Buffer
	err := CodecBaseline.Encode(&buf, gradient(8, 8, 12))
	assert.ErrorIs(t, err, jpeg.ErrInvalidPixelData)
	assert.NoError(t, CodecExtended.Encode(&buf, gradient(8, 8, 12)))
}

func TestRecommendedCodec(t *testing.T) {
	tests := []struct {
		modality string
		want     Codec
	}{
		{"CT", CodecJPEGLi},
		{"DX", CodecJPEGLi},
		{"MG", CodecJPEGLi},
		{"XC", CodecBaseline},
		{"SR", nil},
		{"UNKNOWN", CodecJPEGLi}, // Defaults to first-order lossless
	}
	for _, tt := range tests {
		t.Run(tt.modality, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendedCodec(tt.modality))
		})
	}
}

func TestApplicable(t *testing.T) {
	all := []Codec{CodecBaseline, CodecExtended, CodecLossless, CodecJPEGLi, nil}
	assert.Equal(t, []Codec{CodecLossless, CodecJPEGLi, nil}, Applicable(gradient(4, 4, 16), all...))
	assert.Equal(t, []Codec{CodecExtended, CodecLossless, CodecJPEGLi}, Applicable(gradient(4, 4, 12), all[:4]...))
	assert.Len(t, Applicable(gradient(4, 4, 8), all...), 5)

	sub := jpeg.NewPixelData(16, 16, 8, 3, true, true)
	assert.Equal(t, []Codec{CodecBaseline, CodecExtended}, Applicable(sub, all[:4]...))
}

func TestCompareCompressionRatio(t *testing.T) {
	pd := gradient(64, 64, 16)
	ratios, err := CompareCompressionRatio(pd, CodecJPEGLi, CodecLossless, nil)
	require.NoError(t, err)

	assert.Contains(t, ratios, "jpeg-li")
	assert.Contains(t, ratios, "jpeg-lossless")
	assert.Equal(t, 1.0, ratios["uncompressed"])
	assert.Greater(t, ratios["jpeg-li"], 1.0)
	assert.Greater(t, ratios["jpeg-lossless"], 1.0)
}

func TestCompareCompressionRatio_Errors(t *testing.T) {
	_, err := CompareCompressionRatio(&jpeg.PixelData{}, CodecJPEGLi)
	assert.ErrorContains(t, err, "empty")

	_, err = CompareCompressionRatio(gradient(8, 8, 16), CodecBaseline)
	assert.ErrorContains(t, err, "jpeg-baseline")
}

func TestEstimateCompressedSize(t *testing.T) {
	pd := gradient(64, 64, 16)
	size, err := EstimateCompressedSize(pd, CodecJPEGLi)
	require.NoError(t, err)
	assert.Greater(t, size, 0)
	assert.Less(t, size, 64*64*2)

	size, err = EstimateCompressedSize(pd, nil)
	require.NoError(t, err)
	assert.Equal(t, 64*64*2, size)

	assert.Equal(t, 64*64, UncompressedSize(gradient(64, 64, 8)))
}

func TestCompareCodecs(t *testing.T) {
	pd := gradient(64, 64, 16)
	comparisons, err := CompareCodecs(pd, CodecJPEGLi, nil)
	require.NoError(t, err)
	require.Len(t, comparisons, 2)

	li := comparisons[0]
	assert.Equal(t, "jpeg-li", li.Name)
	assert.Equal(t, 64*64*2, li.UncompressedSize)
	assert.Equal(t, li.UncompressedSize-li.CompressedSize, li.SpaceSaved)
	assert.Greater(t, li.SpaceSavedPercent, 0.0)
	assert.Contains(t, li.String(), "jpeg-li:")
	assert.Contains(t, li.String(), "8192 ->")

	raw := comparisons[1]
	assert.Nil(t, raw.Codec)
	assert.Equal(t, "uncompressed", raw.Name)
	assert.Equal(t, 1.0, raw.Ratio)
	assert.Zero(t, raw.SpaceSaved)
}

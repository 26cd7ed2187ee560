package codec

import (
	"bytes"
	"fmt"

	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
)

// RecommendedCodec returns the recommended compression codec for the given modality.
//
// Projection and cross-sectional modalities get first-order lossless, the
// syntax every DICOM toolkit reads. Visible light photography tolerates
// baseline. Structured reports carry no pixel data and return nil.
//
// Example:
//
//	c := codec.RecommendedCodec("CT")
//	err := c.Encode(w, pd)
func RecommendedCodec(modality string) Codec {
	switch modality {
	case "CT", "MR", "DX", "CR", "MG", "XA":
		return CodecJPEGLi
	case "XC", "ES", "GM", "OP":
		return CodecBaseline
	case "SR", "KO", "PR":
		return nil
	default:
		return CodecJPEGLi
	}
}

// Applicable filters codecs to those whose process accepts pd's precision
// and sampling. Nil entries are kept.
func Applicable(pd *jpeg.PixelData, codecs ...Codec) []Codec {
	var out []Codec
	for _, c := range codecs {
		if c == nil {
			out = append(out, nil)
			continue
		}
		p, ok := c.TransferSyntax().Process()
		if !ok {
			continue
		}
		switch {
		case p == jpeg.ProcessBaseline && pd.Precision != 8:
		case p == jpeg.ProcessExtended && (pd.Precision < 8 || pd.Precision > 12):
		case p.Lossless() && (pd.Precision < 2 || pd.Precision > 16 || subsampled(pd)):
		default:
			out = append(out, c)
		}
	}
	return out
}

func subsampled(pd *jpeg.PixelData) bool {
	for _, p := range pd.Planes {
		if p.H != pd.Planes[0].H || p.V != pd.Planes[0].V {
			return true
		}
	}
	return false
}

// UncompressedSize is the native size of pd in bytes, with samples padded
// to whole bytes the way DICOM Bits Allocated does.
func UncompressedSize(pd *jpeg.PixelData) int {
	bytesPer := (pd.Precision + 7) / 8
	n := 0
	for _, p := range pd.Planes {
		n += len(p.Samples)
	}
	return n * bytesPer
}

// CompareCompressionRatio tests multiple codecs and returns their compression ratios.
//
// The compression ratio is calculated as: uncompressed size / compressed size.
// Higher ratios mean better compression. A nil codec stands for uncompressed.
func CompareCompressionRatio(pd *jpeg.PixelData, codecs ...Codec) (map[string]float64, error) {
	comparisons, err := CompareCodecs(pd, codecs...)
	if err != nil {
		return nil, err
	}
	ratios := make(map[string]float64, len(comparisons))
	for _, c := range comparisons {
		ratios[c.Name] = c.Ratio
	}
	return ratios, nil
}

// EstimateCompressedSize returns the compressed size for pd under codec, or
// the uncompressed size when codec is nil.
//
// Note: This performs actual compression of the data, so it may be slow for large images.
func EstimateCompressedSize(pd *jpeg.PixelData, codec Codec) (int, error) {
	if err := checkPixelData(pd); err != nil {
		return 0, err
	}
	if codec == nil {
		return UncompressedSize(pd), nil
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, pd); err != nil {
		return 0, fmt.Errorf("encoding with %s failed: %w", codec.Name(), err)
	}
	return buf.Len(), nil
}

// CompareCodecs provides a detailed comparison of multiple codecs.
//
// Returns a CodecComparison for each codec with compression metrics.
//
// Example:
//
//	comparisons, err := codec.CompareCodecs(pd, codec.CodecJPEGLi, codec.CodecLossless, nil)
//	for _, comp := range comparisons {
//		fmt.Println(comp)
//	}
func CompareCodecs(pd *jpeg.PixelData, codecs ...Codec) ([]CodecComparison, error) {
	if err := checkPixelData(pd); err != nil {
		return nil, err
	}
	uncompressedSize := UncompressedSize(pd)

	comparisons := make([]CodecComparison, 0, len(codecs))
	for _, codec := range codecs {
		comp := CodecComparison{
			Codec:            codec,
			UncompressedSize: uncompressedSize,
		}
		if codec == nil {
			comp.Name = "uncompressed"
			comp.CompressedSize = uncompressedSize
			comp.Ratio = 1.0
			comparisons = append(comparisons, comp)
			continue
		}
		comp.Name = codec.Name()

		var buf bytes.Buffer
		if err := codec.Encode(&buf, pd); err != nil {
			return nil, fmt.Errorf("encoding with %s failed: %w", codec.Name(), err)
		}
		comp.CompressedSize = buf.Len()
		comp.Ratio = float64(uncompressedSize) / float64(comp.CompressedSize)
		comp.SpaceSaved = uncompressedSize - comp.CompressedSize
		comp.SpaceSavedPercent = (float64(comp.SpaceSaved) / float64(uncompressedSize)) * 100

		comparisons = append(comparisons, comp)
	}
	return comparisons, nil
}

func checkPixelData(pd *jpeg.PixelData) error {
	if pd == nil || len(pd.Planes) == 0 {
		return fmt.Errorf("pixel data is empty")
	}
	for i, p := range pd.Planes {
		if len(p.Samples) == 0 {
			return fmt.Errorf("plane %d is empty", i)
		}
	}
	return nil
}

// CodecComparison contains compression metrics for a single codec.
type CodecComparison struct {
	Codec             Codec   // The codec being compared (nil for uncompressed)
	Name              string  // Codec name
	UncompressedSize  int     // Original size in bytes
	CompressedSize    int     // Compressed size in bytes
	Ratio             float64 // Compression ratio (uncompressed/compressed)
	SpaceSaved        int     // Bytes saved (uncompressed - compressed)
	SpaceSavedPercent float64 // Percentage of space saved
}

// String returns a formatted string describing the codec comparison.
func (c CodecComparison) String() string {
	return fmt.Sprintf("%s: %.2fx ratio, %d -> %d bytes, %.1f%% saved",
		c.Name, c.Ratio, c.UncompressedSize, c.CompressedSize, c.SpaceSavedPercent)
}

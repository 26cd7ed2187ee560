package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	"github.com/jpfielding/dcmjpeg.go/pkg/codec"
	"github.com/jpfielding/dcmjpeg.go/pkg/codec/transfer"
	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpegli"
	"github.com/spf13/cobra"
)

var subsampleFlag = map[string]image.YCbCrSubsampleRatio{
	"444": image.YCbCrSubsampleRatio444,
	"422": image.YCbCrSubsampleRatio422,
	"420": image.YCbCrSubsampleRatio420,
	"440": image.YCbCrSubsampleRatio440,
	"411": image.YCbCrSubsampleRatio411,
	"410": image.YCbCrSubsampleRatio410,
}

// toYCbCr converts color images to YCbCr at ratio. Gray and YCbCr images
// pass through.
func toYCbCr(img image.Image, ratio image.YCbCrSubsampleRatio) image.Image {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr:
		return img
	}
	if m := img.ColorModel(); m == color.GrayModel || m == color.Gray16Model {
		return img
	}
	b := img.Bounds()
	out := image.NewYCbCr(b, ratio)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			out.Y[out.YOffset(x, y)] = yy
			ci := out.COffset(x, y)
			out.Cb[ci], out.Cr[ci] = cb, cr
		}
	}
	return out
}

// toRGB converts color models jpeg.FromImage does not keep to NRGBA.
func toRGB(img image.Image) image.Image {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.RGBA, *image.NRGBA:
		return img
	}
	if m := img.ColorModel(); m == color.GrayModel || m == color.Gray16Model {
		return img
	}
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// encodeImage codes img with c, applying the command line overrides.
func encodeImage(c codec.Codec, img image.Image, overrides jpeg.EncodeOptions, ratio image.YCbCrSubsampleRatio) ([]byte, error) {
	var buf bytes.Buffer
	ts := c.TransferSyntax()
	if ts.IsJPEGLossless() {
		if overrides.Predictor < 0 || overrides.Predictor > 7 {
			return nil, fmt.Errorf("predictor %d outside 1-7", overrides.Predictor)
		}
		enc := &jpegli.Encoder{
			Predictor:       overrides.Predictor,
			PointTransform:  overrides.PointTransform,
			RestartInterval: overrides.RestartInterval,
			Comment:         overrides.Comment,
		}
		if j, ok := c.(*codec.JPEG); ok && enc.Predictor == 0 {
			enc.Predictor = j.Options().Predictor
		}
		if ts == transfer.JPEGLosslessFirstOrder && enc.Predictor > 1 {
			return nil, fmt.Errorf("%s requires predictor 1, got %d", ts.Name(), enc.Predictor)
		}
		if err := jpegli.Encode(&buf, toRGB(img), enc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	pd, err := jpeg.FromImage(toYCbCr(img, ratio))
	if err != nil {
		return nil, err
	}
	limit := 12
	if ts == transfer.JPEGBaseline {
		limit = 8
	}
	if pd.Precision > limit {
		// keep the high bits
		for i := range pd.Planes {
			for j, v := range pd.Planes[i].Samples {
				pd.Planes[i].Samples[j] = v >> (pd.Precision - limit)
			}
		}
		pd.Precision = limit
	}
	if j, ok := c.(*codec.JPEG); ok {
		c = j.With(overrides)
	}
	if err := c.Encode(&buf, pd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewEncodeCmd encodes a png, gif or jpeg image with one of the registered codecs
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "JPEG encode",
		Long:  "encode a png, gif or jpeg image to a JPEG stream with one of: " + strings.Join(codec.Names(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			name, _ := cmd.Flags().GetString("codec")
			c := codec.CodecByName(name)
			if syntax, _ := cmd.Flags().GetString("syntax"); syntax != "" {
				c = codec.CodecByTransferSyntax(transfer.FromUID(syntax))
			}
			if c == nil {
				return fmt.Errorf("unknown codec %q (%s)", name, strings.Join(codec.Names(), "|"))
			}
			sub, _ := cmd.Flags().GetString("subsample")
			ratio, ok := subsampleFlag[sub]
			if !ok {
				return fmt.Errorf("unknown subsampling %q", sub)
			}

			data, err := readInput(ctx, cmd, uri)
			if err != nil {
				return err
			}
			img, format, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			var overrides jpeg.EncodeOptions
			overrides.Quality, _ = cmd.Flags().GetInt("quality")
			overrides.Predictor, _ = cmd.Flags().GetInt("predictor")
			overrides.PointTransform, _ = cmd.Flags().GetInt("pt")
			overrides.RestartInterval, _ = cmd.Flags().GetInt("restart")
			overrides.NonInterleaved, _ = cmd.Flags().GetBool("non-interleaved")
			overrides.Comment, _ = cmd.Flags().GetString("comment")

			encoded, err := encodeImage(c, img, overrides, ratio)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			slog.InfoContext(ctx, "encoded image",
				slog.String("input", format),
				slog.String("codec", c.Name()),
				slog.String("syntax", string(c.TransferSyntax())),
				slog.Int("bytes", len(encoded)))

			outPath, _ := cmd.Flags().GetString("out")
			out, err := createOutput(cmd, outPath)
			if err != nil {
				return err
			}
			defer out.Close()
			_, err = out.Write(encoded)
			return err
		},
	}
	addInputFlags(cmd)
	pf := cmd.PersistentFlags()
	pf.StringP("out", "o", "-", "output path, - for stdout")
	pf.StringP("codec", "c", "jpeg-li", "codec name")
	pf.String("syntax", "", "transfer syntax UID, overrides --codec")
	pf.IntP("quality", "q", jpeg.DefaultQuality, "lossy quality 1-100")
	pf.IntP("predictor", "p", 0, "lossless predictor 1-7, 0 for the codec default")
	pf.Int("pt", 0, "lossless point transform")
	pf.Int("restart", 0, "restart interval in MCUs")
	pf.Bool("non-interleaved", false, "write one scan per component")
	pf.String("comment", "", "COM segment text")
	pf.String("subsample", "420", "chroma subsampling for lossy color (444|422|420|440|411|410)")
	return cmd
}

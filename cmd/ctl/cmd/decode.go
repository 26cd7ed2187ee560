package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"slices"

	"github.com/jpfielding/dcmjpeg.go/pkg/codec"
	"github.com/jpfielding/dcmjpeg.go/pkg/codec/transfer"
	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
	"github.com/jpfielding/dcmjpeg.go/pkg/util"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

// PlaneSummary describes one decoded component.
type PlaneSummary struct {
	ID     uint8  `json:"id"`
	H      int    `json:"h"`
	V      int    `json:"v"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Min    int32  `json:"min"`
	Max    int32  `json:"max"`
	Digest string `json:"digest"`
}

// FrameSummary describes a decoded frame.
type FrameSummary struct {
	ID             string         `json:"id"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Precision      int            `json:"precision"`
	Signed         bool           `json:"signed"`
	Process        string         `json:"process"`
	TransferSyntax string         `json:"transferSyntax"`
	Truncated      bool           `json:"truncated,omitempty"`
	Planes         []PlaneSummary `json:"planes"`
}

func summarize(pd *jpeg.PixelData) FrameSummary {
	fs := FrameSummary{
		Width:          pd.Width,
		Height:         pd.Height,
		Precision:      pd.Precision,
		Signed:         pd.Signed,
		Process:        pd.Process.String(),
		TransferSyntax: string(transfer.ForProcess(pd.Process)),
		Truncated:      pd.Truncated,
	}
	for _, p := range pd.Planes {
		ps := PlaneSummary{ID: p.ID, H: p.H, V: p.V, Width: p.Width, Height: p.Height, Digest: util.SamplesUUID(p.Samples)}
		if len(p.Samples) > 0 {
			ps.Min, ps.Max = slices.Min(p.Samples), slices.Max(p.Samples)
		}
		fs.Planes = append(fs.Planes, ps)
	}
	fs.ID = util.HashUUID(fs.Planes)
	return fs
}

// decodeFrame decodes data with the codec for syntax, or the engine directly
// when syntax is empty.
func decodeFrame(data []byte, syntax string, opts *jpeg.DecodeOptions) (*jpeg.PixelData, error) {
	if syntax == "" {
		return jpeg.Decode(bytes.NewReader(data), opts)
	}
	ts := transfer.FromUID(syntax)
	c := codec.CodecByTransferSyntax(ts)
	if c == nil {
		return nil, fmt.Errorf("no codec for transfer syntax %s", ts.Name())
	}
	return c.Decode(data, opts)
}

// writeRaw writes planes back to back, one byte per sample up to 8 bits and
// two little-endian bytes above.
func writeRaw(w io.Writer, pd *jpeg.PixelData) error {
	bw := bufio.NewWriter(w)
	for _, p := range pd.Planes {
		for _, v := range p.Samples {
			if pd.Precision <= 8 {
				bw.WriteByte(byte(v))
				continue
			}
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(v))
			bw.Write(b[:])
		}
	}
	return bw.Flush()
}

// NewDecodeCmd decodes a JPEG stream to PNG, raw samples or a JSON summary
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "JPEG decode",
		Long:  "decode a JPEG baseline, extended or lossless stream to png, raw samples or a json summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			data, err := readInput(ctx, cmd, uri)
			if err != nil {
				return err
			}
			opts := &jpeg.DecodeOptions{}
			opts.Signed, _ = cmd.Flags().GetBool("signed")
			opts.DefaultHuffmanTables, _ = cmd.Flags().GetBool("default-tables")
			opts.MaxWidth, _ = cmd.Flags().GetInt("max-width")
			opts.MaxHeight, _ = cmd.Flags().GetInt("max-height")
			syntax, _ := cmd.Flags().GetString("syntax")

			pd, err := decodeFrame(data, syntax, opts)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			slog.DebugContext(ctx, "decoded frame",
				slog.Int("width", pd.Width), slog.Int("height", pd.Height),
				slog.String("process", pd.Process.String()), slog.Bool("truncated", pd.Truncated))

			outPath, _ := cmd.Flags().GetString("out")
			out, err := createOutput(cmd, outPath)
			if err != nil {
				return err
			}
			defer out.Close()
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "png":
				img, err := jpeg.ToImage(pd)
				if err != nil {
					return err
				}
				return png.Encode(out, img)
			case "raw":
				if compress, _ := cmd.Flags().GetBool("zstd"); compress {
					zw, err := zstd.NewWriter(out)
					if err != nil {
						return err
					}
					if err := writeRaw(zw, pd); err != nil {
						zw.Close()
						return err
					}
					return zw.Close()
				}
				return writeRaw(out, pd)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summarize(pd))
			default:
				return fmt.Errorf("unknown format %q (png|raw|json)", format)
			}
		},
	}
	addInputFlags(cmd)
	pf := cmd.PersistentFlags()
	pf.StringP("out", "o", "-", "output path, - for stdout")
	pf.StringP("format", "f", "json", "output format (png|raw|json)")
	pf.String("syntax", "", "transfer syntax UID the stream was filed under")
	pf.Bool("zstd", false, "zstd compress raw output")
	pf.Bool("signed", false, "samples are two's complement (Pixel Representation 1)")
	pf.Bool("default-tables", false, "install the standard Huffman tables when a scan references an undefined one")
	pf.Int("max-width", jpeg.DefaultMaxDimension, "reject frames wider than this")
	pf.Int("max-height", jpeg.DefaultMaxDimension, "reject frames taller than this")
	return cmd
}

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jpfielding/dcmjpeg.go/pkg/codec"
	"github.com/jpfielding/dcmjpeg.go/pkg/codec/transfer"
	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze cobra command
func NewAnalyzeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze JPEG stream structure",
		Long:  "Lists the marker segments of a JPEG stream, decodes it and optionally compares the registered codecs on its samples.",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			data, err := readInput(ctx, cmd, uri)
			if err != nil {
				return err
			}
			var a analysis
			a.compare, _ = cmd.Flags().GetBool("compare")
			a.dumpPlane, _ = cmd.Flags().GetInt("dump-plane")
			a.out, _ = cmd.Flags().GetString("out")
			return a.run(cmd.OutOrStdout(), data)
		},
	}
	addInputFlags(cmd)
	pf := cmd.PersistentFlags()
	pf.Bool("compare", false, "re-encode the samples with every applicable codec")
	pf.Int("dump-plane", -1, "Index of plane to dump to disk")
	pf.String("out", "", "Output path for dumped plane")
	return cmd
}

type analysis struct {
	compare   bool
	dumpPlane int
	out       string
}

func (a analysis) run(w io.Writer, data []byte) error {
	fmt.Fprintf(w, "Stream size: %d bytes\n\n", len(data))

	fmt.Fprintln(w, "=== Segments ===")
	segments, inspectErr := jpeg.Inspect(bytes.NewReader(data))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tMARKER\tLENGTH\tDETAIL")
	for _, s := range segments {
		fmt.Fprintf(tw, "0x%06X\t%s\t%d\t%s\n", s.Offset, s.Marker, s.Length, s.Detail)
	}
	tw.Flush()
	if inspectErr != nil {
		fmt.Fprintf(w, "Inspect error: %v\n", inspectErr)
	}
	fmt.Fprintln(w)

	pd, err := jpeg.Decode(bytes.NewReader(data), nil)
	if err != nil {
		fmt.Fprintf(w, "Decode error: %v\n", err)
		return nil
	}
	fs := summarize(pd)
	ts := transfer.Syntax(fs.TransferSyntax)
	fmt.Fprintln(w, "=== Frame ===")
	fmt.Fprintf(w, "Process: %s\n", fs.Process)
	fmt.Fprintf(w, "TransferSyntax: %s (%s)\n", ts, ts.Name())
	fmt.Fprintf(w, "Size: %dx%d, %d-bit\n", fs.Width, fs.Height, fs.Precision)
	fmt.Fprintf(w, "Truncated: %v\n", fs.Truncated)
	fmt.Fprintf(w, "ID: %s\n", fs.ID)
	for i, p := range fs.Planes {
		fmt.Fprintf(w, "Plane %d: id=%d sampling=%dx%d size=%dx%d range=[%d,%d] digest=%s\n",
			i, p.ID, p.H, p.V, p.Width, p.Height, p.Min, p.Max, p.Digest)
	}

	if a.dumpPlane >= 0 {
		if a.dumpPlane >= len(pd.Planes) {
			return fmt.Errorf("plane index %d out of bounds (0-%d)", a.dumpPlane, len(pd.Planes)-1)
		}
		out := a.out
		if out == "" {
			out = fmt.Sprintf("plane_%d.raw", a.dumpPlane)
		}
		single := *pd
		single.Planes = pd.Planes[a.dumpPlane : a.dumpPlane+1]
		var buf bytes.Buffer
		if err := writeRaw(&buf, &single); err != nil {
			return err
		}
		fmt.Fprintf(w, "Dumping plane %d (%d bytes) to %s\n", a.dumpPlane, buf.Len(), out)
		if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
			return err
		}
	}

	if a.compare {
		fmt.Fprintln(w, "\n=== Codec Comparison ===")
		candidates := []codec.Codec{nil}
		for _, name := range codec.Names() {
			candidates = append(candidates, codec.CodecByName(name))
		}
		comparisons, err := codec.CompareCodecs(pd, codec.Applicable(pd, candidates...)...)
		if err != nil {
			return err
		}
		for _, c := range comparisons {
			fmt.Fprintln(w, c)
		}
	}
	return nil
}

package jpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxDimension bounds decoded frames unless DecodeOptions says otherwise.
const DefaultMaxDimension = 16384

// DecodeOptions configures Decode. A nil *DecodeOptions uses the defaults.
type DecodeOptions struct {
	// MaxWidth and MaxHeight reject larger frames before any buffer is
	// allocated. Zero means DefaultMaxDimension.
	MaxWidth  int
	MaxHeight int
	// Signed interprets samples as two's complement (DICOM Pixel
	// Representation 1).
	Signed bool
	// DefaultHuffmanTables installs the T.81 K.3 tables for scans that
	// reference undefined Huffman tables.
	DefaultHuffmanTables bool
}

func (o *DecodeOptions) withDefaults() DecodeOptions {
	var opts DecodeOptions
	if o != nil {
		opts = *o
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxDimension
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = DefaultMaxDimension
	}
	return opts
}

// Segment describes one marker found by Inspect.
type Segment struct {
	Marker Marker
	Offset int64 // of the 0xFF byte
	Length int   // value of the length field, 0 if the marker has none
	Detail string
}

type decoder struct {
	br   *bitReader
	fs   *frameState
	opts DecodeOptions

	// segmentOffset is the offset of the marker being handled.
	segmentOffset int64

	inspect  bool
	segments []Segment
}

func newDecoder(r io.Reader, opts *DecodeOptions) *decoder {
	d := &decoder{
		br:   newBitReader(r),
		fs:   newFrameState(),
		opts: opts.withDefaults(),
	}
	d.fs.signed = d.opts.Signed
	return d
}

// Decode reads one JPEG image (baseline, extended or lossless) from r.
//
// A stream that ends before every MCU was decoded is not an error: the
// result is returned with Truncated set.
func Decode(r io.Reader, opts *DecodeOptions) (*PixelData, error) {
	d := newDecoder(r, opts)
	if err := d.decode(); err != nil {
		return nil, err
	}
	return d.pixelData(), nil
}

// Inspect walks the marker structure of r, decoding it, and reports every
// segment found up to the point of failure.
func Inspect(r io.Reader) ([]Segment, error) {
	d := newDecoder(r, &DecodeOptions{DefaultHuffmanTables: true})
	d.inspect = true
	err := d.decode()
	return d.segments, err
}

func (d *decoder) decode() error {
	br := d.br
	b0, err0 := br.rawByte()
	b1, err1 := br.rawByte()
	if err := errors.Join(err0, err1); err != nil || b0 != 0xFF || Marker(b1) != SOI {
		return &FormatError{Kind: ErrMalformedSignature, Msg: fmt.Sprintf("stream starts with %02X %02X", b0, b1)}
	}
	d.note(SOI, 0, 0)

	fs := d.fs
	for !fs.eoi {
		m, off, err := br.nextMarker()
		if err != nil {
			if fs.scans > 0 && fs.state != stateScanActive {
				slog.Warn("jpeg: stream ends without end of image marker", slog.Int64("offset", off))
				break
			}
			return corrupted(0, off, "unexpected end of stream in %s state", fs.state)
		}
		d.segmentOffset = off
		length := 0
		if m.hasLength() {
			if length, err = br.readUint16(); err != nil {
				return corrupted(m, off, "truncated segment length")
			}
		}
		d.note(m, off, length)
		if err := handlers[kindOf(m)].readSegment(d, m, length); err != nil {
			return err
		}
		d.describe(m)
	}
	if fs.scans == 0 {
		return corrupted(0, br.pos, "no scan decoded")
	}
	if fs.process == ProcessLossless && fs.firstOrder {
		fs.process = ProcessLosslessFirstOrder
	}
	slog.Debug("jpeg: image decoded",
		slog.String("process", fs.process.String()),
		slog.Int("scans", fs.scans),
		slog.Bool("truncated", fs.truncated))
	return nil
}

// note records a segment when inspecting.
func (d *decoder) note(m Marker, off int64, length int) {
	if d.inspect {
		d.segments = append(d.segments, Segment{Marker: m, Offset: off, Length: length})
	}
}

// describe fills in the detail of the last recorded segment once its
// handler ran.
func (d *decoder) describe(m Marker) {
	if !d.inspect || len(d.segments) == 0 {
		return
	}
	fs := d.fs
	seg := &d.segments[len(d.segments)-1]
	if seg.Marker != m {
		// restart markers were recorded while the scan ran
		for i := len(d.segments) - 1; i >= 0; i-- {
			if d.segments[i].Marker == m {
				seg = &d.segments[i]
				break
			}
		}
	}
	switch kindOf(m) {
	case kindFrame:
		seg.Detail = fmt.Sprintf("%s %dx%d P=%d components=%d", fs.process, fs.width, fs.height, fs.precision, len(fs.channels))
		for _, c := range fs.channels {
			seg.Detail += fmt.Sprintf(" [id=%d %dx%d Tq=%d]", c.id, c.h, c.v, c.quantIdx)
		}
	case kindScan:
		sc := fs.scan
		seg.Detail = fmt.Sprintf("components=%d", len(sc.channels))
		for _, c := range sc.channels {
			seg.Detail += fmt.Sprintf(" [id=%d Td=%d Ta=%d]", c.id, c.dcIdx, c.acIdx)
		}
		if fs.process.Lossless() {
			seg.Detail += fmt.Sprintf(" predictor=%d Pt=%d", sc.predictor, sc.al)
		} else {
			seg.Detail += fmt.Sprintf(" Ss=%d Se=%d Ah=%d Al=%d", sc.ss, sc.se, sc.ah, sc.al)
		}
		seg.Detail += fmt.Sprintf(" mcus=%d", sc.totalMCUs())
		if fs.truncated {
			seg.Detail += " truncated"
		}
	case kindRestartInterval:
		seg.Detail = fmt.Sprintf("interval=%d", fs.restartInterval)
	}
}

// pixelData crops the padded buffers to the component dimensions and undoes
// the lossless point transform.
func (d *decoder) pixelData() *PixelData {
	fs := d.fs
	pd := &PixelData{
		Width:     fs.width,
		Height:    fs.height,
		Precision: fs.precision,
		Signed:    fs.signed,
		Process:   fs.process,
		Truncated: fs.truncated,
	}
	mask := int32(1)<<fs.precision - 1
	half := int32(1) << (fs.precision - 1)
	for _, c := range fs.channels {
		p := Plane{
			ID: c.id, H: c.h, V: c.v,
			Width: c.width, Height: c.height,
			Samples: make([]int32, c.width*c.height),
		}
		for y := 0; y < c.height; y++ {
			src := c.samples[y*c.stride : y*c.stride+c.width]
			dst := p.Samples[y*c.width:]
			if !fs.process.Lossless() {
				copy(dst, src)
				continue
			}
			for x, v := range src {
				v = (v << c.pointTransform) & mask
				if fs.signed && v >= half {
					v -= 1 << fs.precision
				}
				dst[x] = v
			}
		}
		pd.Planes = append(pd.Planes, p)
	}
	return pd
}

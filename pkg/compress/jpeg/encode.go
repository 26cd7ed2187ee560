package jpeg

import (
	"fmt"
	"io"
	"log/slog"
)

// DefaultQuality is the lossy quality used when EncodeOptions leaves it zero.
const DefaultQuality = 90

// EncodeOptions configures Encode. A nil *EncodeOptions encodes baseline at
// DefaultQuality.
type EncodeOptions struct {
	Process Process
	// Quality scales the T.81 K.1 quantization tables, 1-100.
	Quality int
	// Predictor selects the lossless predictor, 1-7. Zero means 1.
	Predictor int
	// PointTransform drops the low bits of lossless samples.
	PointTransform int
	// RestartInterval inserts a restart marker every n MCUs, 0 disables.
	RestartInterval int
	// NonInterleaved writes one scan per component.
	NonInterleaved bool
	// Comment is written as a COM segment when not empty.
	Comment string
}

func (o *EncodeOptions) withDefaults() EncodeOptions {
	var opts EncodeOptions
	if o != nil {
		opts = *o
	}
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Predictor == 0 || opts.Process == ProcessLosslessFirstOrder {
		opts.Predictor = 1
	}
	return opts
}

func (o *EncodeOptions) validate(pd *PixelData) error {
	if err := pd.validate(); err != nil {
		return err
	}
	p := pd.Precision
	switch o.Process {
	case ProcessBaseline:
		if p != 8 {
			return fmt.Errorf("%w: baseline requires 8-bit samples, got %d", ErrInvalidPixelData, p)
		}
	case ProcessExtended:
		if p < 8 || p > 12 {
			return fmt.Errorf("%w: extended requires 8 to 12-bit samples, got %d", ErrInvalidPixelData, p)
		}
	case ProcessLossless, ProcessLosslessFirstOrder:
		if p < 2 || p > 16 {
			return fmt.Errorf("%w: lossless requires 2 to 16-bit samples, got %d", ErrInvalidPixelData, p)
		}
		for _, pl := range pd.Planes[1:] {
			if pl.H != pd.Planes[0].H || pl.V != pd.Planes[0].V {
				return fmt.Errorf("%w: lossless frames cannot be subsampled", ErrInvalidPixelData)
			}
		}
		if o.Predictor < 1 || o.Predictor > 7 {
			return fmt.Errorf("%w: predictor %d", ErrInvalidPixelData, o.Predictor)
		}
		if o.PointTransform < 0 || o.PointTransform >= p {
			return fmt.Errorf("%w: point transform %d", ErrInvalidPixelData, o.PointTransform)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedProcess, o.Process)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidPixelData, o.Quality)
	}
	if o.RestartInterval < 0 || o.RestartInterval > 0xFFFF {
		return fmt.Errorf("%w: restart interval %d", ErrInvalidPixelData, o.RestartInterval)
	}
	lo, hi := int32(0), int32(1)<<p-1
	if pd.Signed {
		lo, hi = -1<<(p-1), 1<<(p-1)-1
	}
	for i, pl := range pd.Planes {
		for j, v := range pl.Samples {
			if v < lo || v > hi {
				return fmt.Errorf("%w: plane %d sample %d: %d outside [%d, %d]", ErrInvalidPixelData, i, j, v, lo, hi)
			}
		}
	}
	return nil
}

// Encode writes pd to w as a single-frame JPEG stream with optimized
// Huffman tables.
func Encode(w io.Writer, pd *PixelData, opts *EncodeOptions) error {
	o := opts.withDefaults()
	if err := o.validate(pd); err != nil {
		return err
	}
	return newEncoder(w, pd, o).encode()
}

type encoder struct {
	bw   *bitWriter
	fs   *frameState
	opts EncodeOptions

	// scanTables are the Huffman tables defined ahead of the next scan.
	scanTables []tableRef
}

type tableRef struct {
	class huffmanClass
	slot  int
	table *huffmanTable
}

func newEncoder(w io.Writer, pd *PixelData, opts EncodeOptions) *encoder {
	fs := newFrameState()
	fs.process = opts.Process
	fs.width, fs.height = pd.Width, pd.Height
	fs.precision = pd.Precision
	fs.signed = pd.Signed
	fs.restartInterval = opts.RestartInterval
	for i, p := range pd.Planes {
		slot := min(i, 1)
		c := fs.addChannel(planeID(p, i), p.H, p.V, slot)
		c.dcIdx, c.acIdx = slot, slot
		if fs.process.Lossless() {
			c.quantIdx, c.acIdx = 0, 0
		}
	}
	fs.allocate()
	e := &encoder{bw: newBitWriter(w), fs: fs, opts: opts}
	for i, c := range fs.channels {
		e.fill(c, &pd.Planes[i])
	}
	return e
}

// fill copies a plane into the padded buffer of c, replicating the last
// column and row into the padding.
func (e *encoder) fill(c *channel, p *Plane) {
	lossless := e.fs.process.Lossless()
	mask := int32(1)<<e.fs.precision - 1
	for y := 0; y < c.rows; y++ {
		src := p.Samples[min(y, p.Height-1)*p.Width:]
		for x := 0; x < c.stride; x++ {
			v := src[min(x, p.Width-1)]
			if lossless {
				v = (v & mask) >> e.opts.PointTransform
			}
			c.set(x, y, v)
		}
	}
}

func (e *encoder) encode() error {
	fs := e.fs
	if err := handlers[kindStartOfImage].writeSegment(e, SOI); err != nil {
		return err
	}
	if err := handlers[kindSkip].writeSegment(e, COM); err != nil {
		return err
	}
	if !fs.process.Lossless() {
		fs.quant[0] = scaledQuant(false, e.opts.Quality)
		if len(fs.channels) > 1 {
			fs.quant[1] = scaledQuant(true, e.opts.Quality)
		}
		if err := handlers[kindQuant].writeSegment(e, DQT); err != nil {
			return err
		}
	}
	if err := handlers[kindFrame].writeSegment(e, fs.process.frameMarker()); err != nil {
		return err
	}
	if err := handlers[kindRestartInterval].writeSegment(e, DRI); err != nil {
		return err
	}

	groups := [][]*channel{fs.channels}
	if e.opts.NonInterleaved || len(fs.channels) > 4 {
		groups = groups[:0]
		for _, c := range fs.channels {
			groups = append(groups, []*channel{c})
		}
	}
	for _, g := range groups {
		if err := e.encodeScan(g); err != nil {
			return err
		}
	}
	if err := handlers[kindEndOfImage].writeSegment(e, EOI); err != nil {
		return err
	}
	return e.bw.flush()
}

// encodeScan gathers symbol statistics over the scan, writes the optimized
// tables and the scan header, then codes the scan.
func (e *encoder) encodeScan(channels []*channel) error {
	fs := e.fs
	sc := &scanState{channels: channels, se: 63}
	if fs.process.Lossless() {
		sc.ss, sc.se = e.opts.Predictor, 0
		sc.predictor = e.opts.Predictor
		sc.al = e.opts.PointTransform
	}
	fs.scan = sc
	fs.computeMcuGeometry(sc)

	fs.dc = [numHuffmanSlots]*huffmanTable{}
	fs.ac = [numHuffmanSlots]*huffmanTable{}
	e.scanTables = e.scanTables[:0]
	for _, c := range channels {
		if fs.dc[c.dcIdx] == nil {
			fs.dc[c.dcIdx] = &huffmanTable{}
			e.scanTables = append(e.scanTables, tableRef{classDC, c.dcIdx, fs.dc[c.dcIdx]})
		}
		if !fs.process.Lossless() && fs.ac[c.acIdx] == nil {
			fs.ac[c.acIdx] = &huffmanTable{}
			e.scanTables = append(e.scanTables, tableRef{classAC, c.acIdx, fs.ac[c.acIdx]})
		}
	}

	if err := e.traverse(frequencyCollector{}); err != nil {
		return err
	}
	for _, ref := range e.scanTables {
		if err := ref.table.optimize(); err != nil {
			return fmt.Errorf("jpeg: %s table %d: %w", ref.class, ref.slot, err)
		}
	}
	if err := handlers[kindHuffman].writeSegment(e, DHT); err != nil {
		return err
	}
	if err := handlers[kindScan].writeSegment(e, SOS); err != nil {
		return err
	}

	e.bw.escape = true
	if err := e.traverse(bitEmitter{e}); err != nil {
		return err
	}
	if err := e.bw.resetBitCursor(); err != nil {
		return err
	}
	e.bw.escape = false
	fs.scans++

	slog.Debug("jpeg: scan encoded",
		slog.String("process", fs.process.String()),
		slog.Int("components", len(channels)),
		slog.Int("mcus", sc.totalMCUs()),
		slog.Int64("offset", e.bw.pos))
	return nil
}

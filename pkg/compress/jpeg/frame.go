package jpeg

// Process is the coding process declared by the frame header.
type Process int

const (
	ProcessBaseline           Process = iota // SOF0, 8-bit DCT
	ProcessExtended                          // SOF1, 8/12-bit DCT
	ProcessLossless                          // SOF3, any predictor
	ProcessLosslessFirstOrder                // SOF3, predictor 1 (DICOM .70)
)

func (p Process) String() string {
	switch p {
	case ProcessBaseline:
		return "baseline"
	case ProcessExtended:
		return "extended"
	case ProcessLossless:
		return "lossless"
	case ProcessLosslessFirstOrder:
		return "lossless-first-order"
	default:
		return "unknown"
	}
}

// Lossless reports whether p is one of the predictive processes.
func (p Process) Lossless() bool {
	return p == ProcessLossless || p == ProcessLosslessFirstOrder
}

func (p Process) frameMarker() Marker {
	switch p {
	case ProcessExtended:
		return SOF1
	case ProcessLossless, ProcessLosslessFirstOrder:
		return SOF3
	default:
		return SOF0
	}
}

type protocolState int

const (
	stateBeforeFrame protocolState = iota
	stateFrameDefined
	stateScanActive
	stateEndOfImage
)

func (s protocolState) String() string {
	return [...]string{"before-frame", "frame-defined", "scan-active", "end-of-image"}[s]
}

// channel is one frame component and its sample buffer.
type channel struct {
	id       uint8
	index    int // position in the frame header
	h, v     int
	quantIdx int
	dcIdx    int
	acIdx    int

	// lastDC is the DC predictor (lossy) or the first-sample seed (lossless).
	lastDC int32
	// pointTransform is Al of the scan that coded this channel (lossless).
	pointTransform int

	width, height int // sample dimensions of the component
	stride, rows  int // buffer dimensions, whole MCUs
	samples       []int32

	// pending holds lossless differences whose prediction is not applied yet.
	pending []pendingSample

	// blocks per MCU in the active scan
	blocksH, blocksV int
}

type pendingSample struct {
	x, y int
	diff int32
}

func (c *channel) at(x, y int) int32 {
	return c.samples[y*c.stride+x]
}

func (c *channel) set(x, y int, v int32) {
	c.samples[y*c.stride+x] = v
}

// scanState holds the parameters of the active scan.
type scanState struct {
	channels  []*channel // MCU iteration order
	ss, se    int
	ah, al    int
	predictor int // lossless only, Ss

	unit         int // data unit edge: 8 (DCT) or 1 (lossless)
	maxH, maxV   int // over the scan's components
	mcusX, mcusY int
}

func (s *scanState) totalMCUs() int {
	return s.mcusX * s.mcusY
}

func (s *scanState) interleaved() bool {
	return len(s.channels) > 1
}

// frameState is the mutable session context of one decode or encode call.
type frameState struct {
	state     protocolState
	process   Process
	width     int
	height    int
	precision int
	signed    bool

	channels   []*channel
	byID       map[uint8]*channel
	maxH, maxV int // over all components

	quant [4]*quantTable
	dc    [numHuffmanSlots]*huffmanTable
	ac    [numHuffmanSlots]*huffmanTable

	restartInterval int
	restartCount    int // restart markers seen or emitted in this scan
	mcusProcessed   int
	mcuRow, mcuCol  int
	intervalStart   int // first MCU of the current restart interval
	eobRun          int
	eoi             bool
	truncated       bool

	scan       *scanState
	scans      int
	firstOrder bool // every lossless scan so far used predictor 1
}

func newFrameState() *frameState {
	return &frameState{
		byID:       make(map[uint8]*channel),
		firstOrder: true,
	}
}

func (fs *frameState) addChannel(id uint8, h, v, quantIdx int) *channel {
	c := &channel{id: id, index: len(fs.channels), h: h, v: v, quantIdx: quantIdx}
	fs.channels = append(fs.channels, c)
	fs.byID[id] = c
	return c
}

// subsampled reports whether any component has sampling factors below the
// frame maximum.
func (fs *frameState) subsampled() bool {
	for _, c := range fs.channels {
		if c.h != fs.maxH || c.v != fs.maxV {
			return true
		}
	}
	return false
}

// seed is the lossless prediction for the first sample of an interval.
func (fs *frameState) seed() int32 {
	return 1 << (fs.precision - fs.scan.al - 1)
}

// resetPredictors starts a new restart interval at MCU n.
func (fs *frameState) resetPredictors(n int) {
	fs.intervalStart = n
	fs.eobRun = 0
	for _, c := range fs.scan.channels {
		c.lastDC = 0
		if fs.process.Lossless() {
			c.lastDC = fs.seed()
		}
	}
}

// levelShift and sampleRange describe the DCT sample domain.
func (fs *frameState) levelShift() int32 {
	if fs.signed {
		return 0
	}
	return 1 << (fs.precision - 1)
}

func (fs *frameState) sampleRange() (lo, hi int32) {
	if fs.signed {
		return -1 << (fs.precision - 1), 1<<(fs.precision-1) - 1
	}
	return 0, 1<<fs.precision - 1
}

// available reports whether the sample at (x, y) of c was coded in the
// current restart interval of the active lossless scan.
func (fs *frameState) available(c *channel, x, y int) bool {
	if x < 0 || y < 0 {
		return false
	}
	sc := fs.scan
	mcu := (y/c.blocksV)*sc.mcusX + x/c.blocksH
	return mcu >= fs.intervalStart
}

// predict returns the lossless prediction for the sample at (x, y).
func (fs *frameState) predict(c *channel, x, y int) int32 {
	sc := fs.scan
	if sc.predictor == 0 {
		return 0
	}
	a := fs.available(c, x-1, y)
	b := fs.available(c, x, y-1)
	switch {
	case !a && !b:
		return c.lastDC
	case !b:
		return c.at(x-1, y)
	case !a:
		return c.at(x, y-1)
	case !fs.available(c, x-1, y-1):
		return c.at(x, y-1)
	}
	ra, rb, rc := c.at(x-1, y), c.at(x, y-1), c.at(x-1, y-1)
	switch sc.predictor {
	case 1:
		return ra
	case 2:
		return rb
	case 3:
		return rc
	case 4:
		return ra + rb - rc
	case 5:
		return ra + (rb-rc)>>1
	case 6:
		return rb + (ra-rc)>>1
	default:
		return (ra + rb) >> 1
	}
}

// flushPending applies prediction to the staged lossless differences of c.
func (fs *frameState) flushPending(c *channel) {
	for _, p := range c.pending {
		v := (fs.predict(c, p.x, p.y) + p.diff) & 0xFFFF
		c.set(p.x, p.y, v)
	}
	c.pending = c.pending[:0]
}

func (fs *frameState) flushAllPending() {
	if fs.scan == nil {
		return
	}
	for _, c := range fs.scan.channels {
		fs.flushPending(c)
	}
}

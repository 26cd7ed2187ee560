package jpeg

import "fmt"

// Plane is one component's samples, row-major, Width*Height entries.
type Plane struct {
	ID      uint8 // component identifier, 0 lets the encoder assign index+1
	H, V    int   // sampling factors
	Width   int
	Height  int
	Samples []int32
}

// At returns the sample at column x, row y.
func (p *Plane) At(x, y int) int32 {
	return p.Samples[y*p.Width+x]
}

// PixelData is the pixel plane geometry and samples exchanged with the codec.
type PixelData struct {
	Width     int
	Height    int
	Precision int  // bits per sample
	Signed    bool // samples are two's complement
	Process   Process
	Planes    []Plane

	// Truncated is set when the entropy data ended before every MCU was
	// decoded; the missing samples are zero.
	Truncated bool
}

// NewPixelData allocates planes for the default layout: with subsampling the
// first plane keeps full resolution and the others are halved in the
// subsampled directions.
func NewPixelData(width, height, precision, channels int, subX, subY bool) *PixelData {
	pd := &PixelData{Width: width, Height: height, Precision: precision}
	hmax, vmax := 1, 1
	if channels > 1 && subX {
		hmax = 2
	}
	if channels > 1 && subY {
		vmax = 2
	}
	for i := 0; i < channels; i++ {
		h, v := 1, 1
		if i == 0 {
			h, v = hmax, vmax
		}
		w, ht := ceilDiv(width*h, hmax), ceilDiv(height*v, vmax)
		pd.Planes = append(pd.Planes, Plane{
			ID: uint8(i + 1), H: h, V: v,
			Width: w, Height: ht,
			Samples: make([]int32, w*ht),
		})
	}
	return pd
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (fs *frameState) dataUnit() int {
	if fs.process.Lossless() {
		return 1
	}
	return 8
}

// allocate derives component dimensions and sizes every buffer to a whole
// number of frame MCUs, which also covers single-component scans.
func (fs *frameState) allocate() {
	fs.maxH, fs.maxV = 1, 1
	for _, c := range fs.channels {
		fs.maxH = max(fs.maxH, c.h)
		fs.maxV = max(fs.maxV, c.v)
	}
	unit := fs.dataUnit()
	mcusX := ceilDiv(fs.width, unit*fs.maxH)
	mcusY := ceilDiv(fs.height, unit*fs.maxV)
	for _, c := range fs.channels {
		c.width = ceilDiv(fs.width*c.h, fs.maxH)
		c.height = ceilDiv(fs.height*c.v, fs.maxV)
		c.stride = mcusX * c.h * unit
		c.rows = mcusY * c.v * unit
		c.samples = make([]int32, c.stride*c.rows)
	}
}

// computeMcuGeometry sets the MCU grid of sc and the blocks per MCU of each
// of its components.
func (fs *frameState) computeMcuGeometry(sc *scanState) {
	sc.unit = fs.dataUnit()
	sc.maxH, sc.maxV = 1, 1
	for _, c := range sc.channels {
		sc.maxH = max(sc.maxH, c.h)
		sc.maxV = max(sc.maxV, c.v)
	}
	if !sc.interleaved() {
		c := sc.channels[0]
		c.blocksH, c.blocksV = 1, 1
		sc.mcusX = ceilDiv(c.width, sc.unit)
		sc.mcusY = ceilDiv(c.height, sc.unit)
		return
	}
	for _, c := range sc.channels {
		c.blocksH, c.blocksV = c.h, c.v
	}
	sc.mcusX = ceilDiv(fs.width, sc.unit*fs.maxH)
	sc.mcusY = ceilDiv(fs.height, sc.unit*fs.maxV)
}

// forEachBlock calls fn with the top-left sample of every data unit of the
// MCU at (row, col), in scan order.
func (sc *scanState) forEachBlock(row, col int, fn func(c *channel, x, y int) error) error {
	for _, c := range sc.channels {
		for by := 0; by < c.blocksV; by++ {
			for bx := 0; bx < c.blocksH; bx++ {
				x := (col*c.blocksH + bx) * sc.unit
				y := (row*c.blocksV + by) * sc.unit
				if err := fn(c, x, y); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// validate checks that the planes match the sampling geometry. It is used by
// the encoder before anything is written.
func (pd *PixelData) validate() error {
	if pd.Width < 1 || pd.Width > 0xFFFF || pd.Height < 1 || pd.Height > 0xFFFF {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrInvalidPixelData, pd.Width, pd.Height)
	}
	if len(pd.Planes) == 0 || len(pd.Planes) > 255 {
		return fmt.Errorf("%w: invalid plane count %d", ErrInvalidPixelData, len(pd.Planes))
	}
	hmax, vmax := 1, 1
	for i, p := range pd.Planes {
		if !validSampling(p.H) || !validSampling(p.V) {
			return fmt.Errorf("%w: plane %d: sampling %dx%d not in {1,2,4}", ErrInvalidPixelData, i, p.H, p.V)
		}
		hmax, vmax = max(hmax, p.H), max(vmax, p.V)
	}
	ids := make(map[uint8]bool)
	for i, p := range pd.Planes {
		w, h := ceilDiv(pd.Width*p.H, hmax), ceilDiv(pd.Height*p.V, vmax)
		if p.Width != w || p.Height != h {
			return fmt.Errorf("%w: plane %d: got %dx%d, sampling %dx%d requires %dx%d", ErrInvalidPixelData, i, p.Width, p.Height, p.H, p.V, w, h)
		}
		if len(p.Samples) != w*h {
			return fmt.Errorf("%w: plane %d: %d samples, want %d", ErrInvalidPixelData, i, len(p.Samples), w*h)
		}
		id := planeID(p, i)
		if ids[id] {
			return fmt.Errorf("%w: plane %d: duplicate component id %d", ErrInvalidPixelData, i, id)
		}
		ids[id] = true
	}
	return nil
}

func validSampling(f int) bool {
	return f == 1 || f == 2 || f == 4
}

func planeID(p Plane, i int) uint8 {
	if p.ID == 0 {
		return uint8(i + 1)
	}
	return p.ID
}

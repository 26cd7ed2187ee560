package jpeg

import (
	"errors"
	"io"
	"log/slog"
	"math/bits"
)

// decodeScan runs the MCU loop of the active scan.
func (d *decoder) decodeScan() error {
	fs, sc := d.fs, d.fs.scan
	fs.restartCount, fs.mcusProcessed = 0, 0
	fs.resetPredictors(0)
	d.br.resetBitCursor()
	d.br.escape = true
	defer func() {
		d.br.escape = false
		d.br.resetBitCursor()
	}()

	unit := d.decodeBlock
	if fs.process.Lossless() {
		unit = d.decodeLosslessSample
	}
	total := sc.totalMCUs()
	for fs.mcusProcessed < total {
		if ri := fs.restartInterval; ri > 0 && fs.mcusProcessed == (fs.restartCount+1)*ri {
			done, err := d.expectRestart()
			if err != nil || done {
				return err
			}
			continue
		}
		fs.mcuRow, fs.mcuCol = fs.mcusProcessed/sc.mcusX, fs.mcusProcessed%sc.mcusX
		err := sc.forEachBlock(fs.mcuRow, fs.mcuCol, unit)
		fs.flushAllPending()
		if err != nil {
			done, err := d.interrupted(err)
			if err != nil || done {
				return err
			}
			continue
		}
		fs.mcusProcessed++
	}
	return nil
}

// expectRestart consumes the restart marker due at an interval boundary.
func (d *decoder) expectRestart() (bool, error) {
	d.br.resetBitCursor()
	m, off, err := d.br.nextMarker()
	if err != nil {
		return d.interrupted(err)
	}
	d.segmentOffset = off
	d.note(m, off, 0)
	switch kindOf(m) {
	case kindRestart:
		return false, handlers[kindRestart].readSegment(d, m, 0)
	case kindEndOfImage:
		return d.interrupted(errEOIInScan)
	}
	return false, corrupted(m, off, "expected restart marker after MCU %d", d.fs.mcusProcessed)
}

// interrupted classifies an error raised inside entropy-coded data. done is
// set when decoding of the stream must stop without failing.
func (d *decoder) interrupted(err error) (done bool, _ error) {
	fs := d.fs
	switch {
	case errors.Is(err, errEOIInScan):
		d.br.pending = 0
		d.truncate("end of image marker")
		return true, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		d.truncate("end of stream")
		return true, nil
	case errors.Is(err, errMarkerInScan):
		m, off, _ := d.br.nextMarker()
		d.segmentOffset = off
		if kindOf(m) == kindRestart && fs.restartInterval > 0 {
			d.note(m, off, 0)
			return false, handlers[kindRestart].readSegment(d, m, 0)
		}
		return false, corrupted(m, off, "marker inside entropy-coded data at MCU %d", fs.mcusProcessed)
	case errors.Is(err, errBadHuffmanCode):
		return false, corrupted(SOS, d.br.pos, "invalid Huffman code at MCU %d", fs.mcusProcessed)
	}
	return false, err
}

// truncate ends the session early. Samples of undecoded MCUs stay zero.
func (d *decoder) truncate(cause string) {
	fs := d.fs
	fs.truncated = true
	fs.eoi = true
	fs.state = stateEndOfImage
	slog.Warn("jpeg: premature end of image",
		slog.String("cause", cause),
		slog.Int("decodedMCUs", fs.mcusProcessed),
		slog.Int("totalMCUs", fs.scan.totalMCUs()),
		slog.Int64("offset", d.br.pos))
}

// decodeBlock decodes one 8x8 data unit of c with its top-left sample at (x, y).
func (d *decoder) decodeBlock(c *channel, x, y int) error {
	fs := d.fs
	var coef [blockSize]int32

	s, err := fs.dc[c.dcIdx].decodeSymbol(d.br)
	if err != nil {
		return err
	}
	if s > 16 {
		return corrupted(SOS, d.br.pos, "DC category %d", s)
	}
	diff, err := d.receiveExtend(int(s))
	if err != nil {
		return err
	}
	c.lastDC += diff
	coef[0] = c.lastDC

	if fs.eobRun > 0 {
		fs.eobRun--
	} else {
		ac := fs.ac[c.acIdx]
		for k := 1; k < blockSize; {
			rs, err := ac.decodeSymbol(d.br)
			if err != nil {
				return err
			}
			r, s := int(rs>>4), int(rs&0x0F)
			if s == 0 {
				if r == 15 {
					if k+16 > blockSize {
						return corrupted(SOS, d.br.pos, "zero run past end of block")
					}
					k += 16
					continue
				}
				if r > 0 {
					n, err := d.br.readBits(r)
					if err != nil {
						return err
					}
					fs.eobRun = 1<<r + int(n) - 1
				}
				break
			}
			k += r
			if k >= blockSize {
				return corrupted(SOS, d.br.pos, "coefficient index %d past end of block", k)
			}
			v, err := d.receiveExtend(s)
			if err != nil {
				return err
			}
			coef[zigzag[k]] = v
			k++
		}
	}
	d.storeBlock(c, x, y, &coef)
	return nil
}

func (d *decoder) storeBlock(c *channel, x, y int, coef *[blockSize]int32) {
	fs := d.fs
	var out [blockSize]int32
	inverseDCT(coef, fs.quant[c.quantIdx], &out)
	shift := fs.levelShift()
	lo, hi := fs.sampleRange()
	for r := 0; r < 8; r++ {
		row := c.samples[(y+r)*c.stride+x:]
		for col := 0; col < 8; col++ {
			row[col] = min(max(out[r*8+col]+shift, lo), hi)
		}
	}
}

// decodeLosslessSample stages one difference; prediction is applied when the
// MCU is flushed.
func (d *decoder) decodeLosslessSample(c *channel, x, y int) error {
	s, err := d.fs.dc[c.dcIdx].decodeSymbol(d.br)
	if err != nil {
		return err
	}
	var diff int32
	switch {
	case s > 16:
		return corrupted(SOS, d.br.pos, "difference category %d", s)
	case s == 16:
		diff = 32768
	default:
		if diff, err = d.receiveExtend(int(s)); err != nil {
			return err
		}
	}
	c.pending = append(c.pending, pendingSample{x: x, y: y, diff: diff})
	return nil
}

// receiveExtend reads an s-bit magnitude and sign-extends it (T.81 F.2.2.1).
func (d *decoder) receiveExtend(s int) (int32, error) {
	if s == 0 {
		return 0, nil
	}
	v, err := d.br.readBits(s)
	if err != nil {
		return 0, err
	}
	return extend(v, s), nil
}

func extend(v uint32, s int) int32 {
	if v < 1<<(s-1) {
		return int32(v) - (1<<s - 1)
	}
	return int32(v)
}

// category is the number of magnitude bits of v.
func category(v int32) int {
	if v < 0 {
		v = -v
	}
	return bits.Len32(uint32(v))
}

// magnitude returns the extra bits coding v in category s.
func magnitude(v int32, s int) uint32 {
	if v < 0 {
		v--
	}
	return uint32(v) & (1<<s - 1)
}

// symbolSink receives the symbols produced by the encoder's traversal.
type symbolSink interface {
	symbol(h *huffmanTable, sym byte, extra uint32, n int) error
	restart(m Marker) error
}

// frequencyCollector gathers symbol statistics for table optimization.
type frequencyCollector struct{}

func (frequencyCollector) symbol(h *huffmanTable, sym byte, _ uint32, _ int) error {
	h.incrementFrequency(sym)
	return nil
}

func (frequencyCollector) restart(Marker) error {
	return nil
}

// bitEmitter writes coded symbols to the output.
type bitEmitter struct {
	e *encoder
}

func (b bitEmitter) symbol(h *huffmanTable, sym byte, extra uint32, n int) error {
	if err := h.encodeSymbol(b.e.bw, sym); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return b.e.bw.writeBits(extra, n)
}

func (b bitEmitter) restart(m Marker) error {
	return handlers[kindRestart].writeSegment(b.e, m)
}

// traverse runs the scan pipeline over every MCU, feeding sink.
func (e *encoder) traverse(sink symbolSink) error {
	fs, sc := e.fs, e.fs.scan
	fs.restartCount = 0
	fs.resetPredictors(0)
	unit := func(c *channel, x, y int) error {
		return e.encodeBlock(sink, c, x, y)
	}
	if fs.process.Lossless() {
		unit = func(c *channel, x, y int) error {
			return e.encodeSample(sink, c, x, y)
		}
	}
	total := sc.totalMCUs()
	for n := 0; n < total; n++ {
		if ri := fs.restartInterval; ri > 0 && n > 0 && n%ri == 0 {
			if err := sink.restart(RST0 + Marker(fs.restartCount&7)); err != nil {
				return err
			}
			fs.restartCount++
			fs.resetPredictors(n)
		}
		fs.mcusProcessed = n
		fs.mcuRow, fs.mcuCol = n/sc.mcusX, n%sc.mcusX
		if err := sc.forEachBlock(fs.mcuRow, fs.mcuCol, unit); err != nil {
			return err
		}
	}
	fs.mcusProcessed = total
	return nil
}

func (e *encoder) encodeBlock(sink symbolSink, c *channel, x, y int) error {
	fs := e.fs
	var (
		block [blockSize]float64
		coef  [blockSize]int32
	)
	shift := fs.levelShift()
	for r := 0; r < 8; r++ {
		row := c.samples[(y+r)*c.stride+x:]
		for col := 0; col < 8; col++ {
			block[r*8+col] = float64(row[col] - shift)
		}
	}
	forwardDCT(&block, fs.quant[c.quantIdx], &coef)

	dc, ac := fs.dc[c.dcIdx], fs.ac[c.acIdx]
	diff := coef[0] - c.lastDC
	c.lastDC = coef[0]
	s := category(diff)
	if err := sink.symbol(dc, byte(s), magnitude(diff, s), s); err != nil {
		return err
	}
	run := 0
	for k := 1; k < blockSize; k++ {
		v := coef[zigzag[k]]
		if v == 0 {
			run++
			continue
		}
		for ; run > 15; run -= 16 {
			if err := sink.symbol(ac, 0xF0, 0, 0); err != nil {
				return err
			}
		}
		s := category(v)
		if err := sink.symbol(ac, byte(run<<4|s), magnitude(v, s), s); err != nil {
			return err
		}
		run = 0
	}
	if run > 0 {
		return sink.symbol(ac, 0x00, 0, 0)
	}
	return nil
}

// encodeSample codes one lossless difference, reduced modulo 2^16.
func (e *encoder) encodeSample(sink symbolSink, c *channel, x, y int) error {
	diff := int32(int16(uint16(c.at(x, y) - e.fs.predict(c, x, y))))
	s := category(diff)
	if s == 16 {
		return sink.symbol(e.fs.dc[c.dcIdx], 16, 0, 0)
	}
	return sink.symbol(e.fs.dc[c.dcIdx], byte(s), magnitude(diff, s), s)
}

package jpeg

import (
	"fmt"
	"log/slog"
)

// Marker is the code byte following 0xFF.
type Marker byte

// Marker codes (ITU-T T.81 Table B.1)
const (
	SOF0 Marker = 0xC0 // Baseline DCT
	SOF1 Marker = 0xC1 // Extended sequential DCT
	SOF2 Marker = 0xC2 // Progressive DCT
	SOF3 Marker = 0xC3 // Lossless (sequential)
	DHT  Marker = 0xC4 // Define Huffman tables
	SOF5 Marker = 0xC5 // Differential sequential DCT
	SOF7 Marker = 0xC7 // Differential lossless
	JPG  Marker = 0xC8 // Reserved
	SOF9 Marker = 0xC9 // Extended sequential DCT, arithmetic
	DAC  Marker = 0xCC // Define arithmetic conditioning
	SOFF Marker = 0xCF // Differential lossless, arithmetic
	RST0 Marker = 0xD0 // Restart 0
	RST7 Marker = 0xD7 // Restart 7
	SOI  Marker = 0xD8 // Start of image
	EOI  Marker = 0xD9 // End of image
	SOS  Marker = 0xDA // Start of scan
	DQT  Marker = 0xDB // Define quantization tables
	DNL  Marker = 0xDC // Define number of lines
	DRI  Marker = 0xDD // Define restart interval
	APP0 Marker = 0xE0 // Application segment 0
	COM  Marker = 0xFE // Comment
	TEM  Marker = 0x01 // Temporary private use
)

func (m Marker) String() string {
	switch {
	case m == SOF0:
		return "SOF0"
	case m == SOF1:
		return "SOF1"
	case m == SOF3:
		return "SOF3"
	case m == DHT:
		return "DHT"
	case m == DAC:
		return "DAC"
	case m == JPG:
		return "JPG"
	case m >= SOF0 && m <= SOFF:
		return fmt.Sprintf("SOF%d", int(m-SOF0))
	case m >= RST0 && m <= RST7:
		return fmt.Sprintf("RST%d", int(m-RST0))
	case m == SOI:
		return "SOI"
	case m == EOI:
		return "EOI"
	case m == SOS:
		return "SOS"
	case m == DQT:
		return "DQT"
	case m == DNL:
		return "DNL"
	case m == DRI:
		return "DRI"
	case m >= APP0 && m <= APP0+15:
		return fmt.Sprintf("APP%d", int(m-APP0))
	case m == COM:
		return "COM"
	case m == TEM:
		return "TEM"
	default:
		return fmt.Sprintf("0x%02X", byte(m))
	}
}

// hasLength reports whether a length-prefixed payload follows the marker.
func (m Marker) hasLength() bool {
	return !(m == SOI || m == EOI || m == TEM || (m >= RST0 && m <= RST7))
}

// markerKind groups marker codes that share a segment handler.
type markerKind int

const (
	kindSkip markerKind = iota
	kindStartOfImage
	kindFrame
	kindUnsupportedFrame
	kindHuffman
	kindQuant
	kindRestartInterval
	kindScan
	kindRestart
	kindEndOfImage
)

func kindOf(m Marker) markerKind {
	switch {
	case m == SOF0 || m == SOF1 || m == SOF3:
		return kindFrame
	case m == DHT:
		return kindHuffman
	case m == JPG || m == DAC:
		return kindSkip
	case m >= SOF0 && m <= SOFF:
		return kindUnsupportedFrame
	case m >= RST0 && m <= RST7:
		return kindRestart
	case m == SOI:
		return kindStartOfImage
	case m == EOI:
		return kindEndOfImage
	case m == SOS:
		return kindScan
	case m == DQT:
		return kindQuant
	case m == DRI:
		return kindRestartInterval
	default:
		return kindSkip
	}
}

// segmentHandler reads or writes the payload of one marker kind. length is
// the value of the segment's length field, zero for markers without one.
type segmentHandler interface {
	readSegment(d *decoder, m Marker, length int) error
	writeSegment(e *encoder, m Marker) error
}

var handlers = map[markerKind]segmentHandler{
	kindSkip:             skipSegment{},
	kindStartOfImage:     startOfImage{},
	kindFrame:            frameHeader{},
	kindUnsupportedFrame: unsupportedFrame{},
	kindHuffman:          huffmanSegment{},
	kindQuant:            quantSegment{},
	kindRestartInterval:  restartIntervalSegment{},
	kindScan:             scanHeader{},
	kindRestart:          restartSegment{},
	kindEndOfImage:       endOfImage{},
}

// payload reads the segment body following the length field.
func (d *decoder) payload(m Marker, length int) ([]byte, error) {
	if length < 2 {
		return nil, corrupted(m, d.segmentOffset, "segment length %d", length)
	}
	buf := make([]byte, length-2)
	if err := d.br.readFull(buf); err != nil {
		return nil, corrupted(m, d.segmentOffset, "truncated segment: %v", err)
	}
	return buf, nil
}

type skipSegment struct{}

func (skipSegment) readSegment(d *decoder, m Marker, length int) error {
	if !m.hasLength() {
		return nil
	}
	if length < 2 {
		return corrupted(m, d.segmentOffset, "segment length %d", length)
	}
	slog.Debug("jpeg: skipping segment", slog.String("marker", m.String()), slog.Int("length", length))
	if err := d.br.skipForward(length - 2); err != nil {
		return corrupted(m, d.segmentOffset, "truncated segment: %v", err)
	}
	return nil
}

// writeSegment emits the encoder's comment as a COM segment.
func (skipSegment) writeSegment(e *encoder, m Marker) error {
	if len(e.opts.Comment) == 0 {
		return nil
	}
	if len(e.opts.Comment) > 0xFFFF-2 {
		return fmt.Errorf("jpeg: comment too long (%d bytes)", len(e.opts.Comment))
	}
	if err := e.bw.writeMarker(COM); err != nil {
		return err
	}
	if err := e.bw.writeUint16(len(e.opts.Comment) + 2); err != nil {
		return err
	}
	return e.bw.write([]byte(e.opts.Comment))
}

type startOfImage struct{}

func (startOfImage) readSegment(d *decoder, m Marker, _ int) error {
	return corrupted(m, d.segmentOffset, "unexpected start of image in %s state", d.fs.state)
}

func (startOfImage) writeSegment(e *encoder, _ Marker) error {
	return e.bw.writeMarker(SOI)
}

type unsupportedFrame struct{}

func (unsupportedFrame) readSegment(d *decoder, m Marker, _ int) error {
	return &FormatError{Kind: ErrUnsupportedProcess, Marker: m, Offset: d.segmentOffset, Msg: "frame type not supported"}
}

func (unsupportedFrame) writeSegment(_ *encoder, m Marker) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedProcess, m)
}

type frameHeader struct{}

func (frameHeader) readSegment(d *decoder, m Marker, length int) error {
	fs := d.fs
	if fs.state != stateBeforeFrame {
		return corrupted(m, d.segmentOffset, "second frame header")
	}
	p, err := d.payload(m, length)
	if err != nil {
		return err
	}
	if len(p) < 6 {
		return corrupted(m, d.segmentOffset, "frame header too short")
	}
	switch m {
	case SOF0:
		fs.process = ProcessBaseline
	case SOF1:
		fs.process = ProcessExtended
	default:
		fs.process = ProcessLossless
	}
	fs.precision = int(p[0])
	fs.height = int(p[1])<<8 | int(p[2])
	fs.width = int(p[3])<<8 | int(p[4])
	nf := int(p[5])

	switch {
	case fs.process == ProcessBaseline && fs.precision != 8,
		fs.process == ProcessExtended && (fs.precision < 8 || fs.precision > 12),
		fs.process.Lossless() && (fs.precision < 2 || fs.precision > 16):
		return corrupted(m, d.segmentOffset, "invalid precision %d for %s", fs.precision, fs.process)
	}
	if fs.width == 0 || fs.height == 0 {
		return corrupted(m, d.segmentOffset, "invalid dimensions %dx%d", fs.width, fs.height)
	}
	if fs.width > d.opts.MaxWidth || fs.height > d.opts.MaxHeight {
		return &FormatError{Kind: ErrOversized, Marker: m, Offset: d.segmentOffset,
			Msg: fmt.Sprintf("%dx%d exceeds %dx%d", fs.width, fs.height, d.opts.MaxWidth, d.opts.MaxHeight)}
	}
	if nf == 0 || len(p) != 6+3*nf {
		return corrupted(m, d.segmentOffset, "%d components in %d bytes", nf, len(p))
	}
	for i := 0; i < nf; i++ {
		b := p[6+3*i:]
		id, h, v, tq := b[0], int(b[1]>>4), int(b[1]&0x0F), int(b[2])
		if _, dup := fs.byID[id]; dup {
			return corrupted(m, d.segmentOffset, "duplicate component id %d", id)
		}
		if h < 1 || h > 4 || v < 1 || v > 4 {
			return corrupted(m, d.segmentOffset, "component %d: sampling %dx%d", id, h, v)
		}
		if tq > 3 {
			return corrupted(m, d.segmentOffset, "component %d: quantization table %d", id, tq)
		}
		fs.addChannel(id, h, v, tq)
	}
	fs.allocate()
	fs.state = stateFrameDefined

	slog.Debug("jpeg: SOF parsed",
		slog.String("process", fs.process.String()),
		slog.Int("precision", fs.precision),
		slog.Int("width", fs.width),
		slog.Int("height", fs.height),
		slog.Int("components", nf))
	return nil
}

func (frameHeader) writeSegment(e *encoder, m Marker) error {
	fs := e.fs
	bw := e.bw
	if err := bw.writeMarker(m); err != nil {
		return err
	}
	if err := bw.writeUint16(8 + 3*len(fs.channels)); err != nil {
		return err
	}
	hdr := []byte{
		byte(fs.precision),
		byte(fs.height >> 8), byte(fs.height),
		byte(fs.width >> 8), byte(fs.width),
		byte(len(fs.channels)),
	}
	for _, c := range fs.channels {
		hdr = append(hdr, c.id, byte(c.h<<4|c.v), byte(c.quantIdx))
	}
	return bw.write(hdr)
}

type huffmanSegment struct{}

func (huffmanSegment) readSegment(d *decoder, m Marker, length int) error {
	p, err := d.payload(m, length)
	if err != nil {
		return err
	}
	for len(p) > 0 {
		if len(p) < 17 {
			return corrupted(m, d.segmentOffset, "truncated Huffman table")
		}
		class, slot := huffmanClass(p[0]>>4), int(p[0]&0x0F)
		if class > classAC {
			return corrupted(m, d.segmentOffset, "invalid Huffman table class %d", class)
		}
		var counts [maxCodeLength]int
		total := 0
		for i := range counts {
			counts[i] = int(p[1+i])
			total += counts[i]
		}
		if total == 0 || total > maxHuffmanSymbol || len(p) < 17+total {
			return corrupted(m, d.segmentOffset, "%s table %d: %d symbols", class, slot, total)
		}
		h, err := newHuffmanTable(counts, p[17:17+total])
		if err != nil {
			return corrupted(m, d.segmentOffset, "%s table %d: %v", class, slot, err)
		}
		if class == classDC {
			d.fs.dc[slot] = h
		} else {
			d.fs.ac[slot] = h
		}
		slog.Debug("jpeg: DHT parsed",
			slog.String("class", class.String()),
			slog.Int("table", slot),
			slog.Int("symbols", total))
		p = p[17+total:]
	}
	return nil
}

// writeSegment writes the tables referenced by the encoder's next scan.
func (huffmanSegment) writeSegment(e *encoder, m Marker) error {
	var body []byte
	for _, ref := range e.scanTables {
		body = append(body, byte(int(ref.class)<<4|ref.slot))
		for _, c := range ref.table.counts {
			body = append(body, byte(c))
		}
		body = append(body, ref.table.symbols...)
	}
	if len(body) == 0 {
		return nil
	}
	if err := e.bw.writeMarker(m); err != nil {
		return err
	}
	if err := e.bw.writeUint16(len(body) + 2); err != nil {
		return err
	}
	return e.bw.write(body)
}

type quantSegment struct{}

func (quantSegment) readSegment(d *decoder, m Marker, length int) error {
	p, err := d.payload(m, length)
	if err != nil {
		return err
	}
	for len(p) > 0 {
		pq, tq := int(p[0]>>4), int(p[0]&0x0F)
		if pq > 1 || tq > 3 {
			return corrupted(m, d.segmentOffset, "invalid quantization table %d/%d", pq, tq)
		}
		n := 1 + blockSize*(pq+1)
		if len(p) < n {
			return corrupted(m, d.segmentOffset, "truncated quantization table %d", tq)
		}
		var values [blockSize]uint16
		for k := 0; k < blockSize; k++ {
			v := uint16(p[1+k])
			if pq == 1 {
				v = uint16(p[1+2*k])<<8 | uint16(p[2+2*k])
			}
			if v == 0 {
				return corrupted(m, d.segmentOffset, "quantization table %d: zero step", tq)
			}
			values[zigzag[k]] = v
		}
		q := newQuantTable(values)
		q.precision = pq
		d.fs.quant[tq] = q
		slog.Debug("jpeg: DQT parsed", slog.Int("table", tq), slog.Int("precision", pq))
		p = p[n:]
	}
	return nil
}

func (quantSegment) writeSegment(e *encoder, m Marker) error {
	var body []byte
	for i, q := range e.fs.quant {
		if q == nil {
			continue
		}
		body = append(body, byte(q.precision<<4|i))
		for k := 0; k < blockSize; k++ {
			v := q.values[zigzag[k]]
			if q.precision == 1 {
				body = append(body, byte(v>>8))
			}
			body = append(body, byte(v))
		}
	}
	if len(body) == 0 {
		return nil
	}
	if err := e.bw.writeMarker(m); err != nil {
		return err
	}
	if err := e.bw.writeUint16(len(body) + 2); err != nil {
		return err
	}
	return e.bw.write(body)
}

type restartIntervalSegment struct{}

func (restartIntervalSegment) readSegment(d *decoder, m Marker, length int) error {
	p, err := d.payload(m, length)
	if err != nil {
		return err
	}
	if len(p) != 2 {
		return corrupted(m, d.segmentOffset, "restart interval segment of %d bytes", len(p))
	}
	d.fs.restartInterval = int(p[0])<<8 | int(p[1])
	slog.Debug("jpeg: DRI parsed", slog.Int("interval", d.fs.restartInterval))
	return nil
}

func (restartIntervalSegment) writeSegment(e *encoder, m Marker) error {
	if e.fs.restartInterval == 0 {
		return nil
	}
	if err := e.bw.writeMarker(m); err != nil {
		return err
	}
	if err := e.bw.writeUint16(4); err != nil {
		return err
	}
	return e.bw.writeUint16(e.fs.restartInterval)
}

type scanHeader struct{}

func (scanHeader) readSegment(d *decoder, m Marker, length int) error {
	fs := d.fs
	if fs.state != stateFrameDefined {
		return corrupted(m, d.segmentOffset, "scan header in %s state", fs.state)
	}
	p, err := d.payload(m, length)
	if err != nil {
		return err
	}
	if len(p) < 1 {
		return corrupted(m, d.segmentOffset, "empty scan header")
	}
	ns := int(p[0])
	if ns < 1 || ns > 4 || len(p) != 4+2*ns {
		return corrupted(m, d.segmentOffset, "%d scan components in %d bytes", ns, len(p))
	}
	sc := &scanState{}
	seen := make(map[uint8]bool)
	for i := 0; i < ns; i++ {
		id, tables := p[1+2*i], p[2+2*i]
		c, ok := fs.byID[id]
		if !ok || seen[id] {
			return corrupted(m, d.segmentOffset, "scan component %d unknown or repeated", id)
		}
		seen[id] = true
		c.dcIdx, c.acIdx = int(tables>>4), int(tables&0x0F)
		sc.channels = append(sc.channels, c)
	}
	tail := p[1+2*ns:]
	sc.ss, sc.se = int(tail[0]), int(tail[1])
	sc.ah, sc.al = int(tail[2]>>4), int(tail[2]&0x0F)

	if fs.process.Lossless() {
		sc.predictor = sc.ss
		if sc.predictor > 7 {
			return corrupted(m, d.segmentOffset, "predictor %d out of range", sc.predictor)
		}
		if sc.ah != 0 || sc.al >= fs.precision {
			return corrupted(m, d.segmentOffset, "invalid point transform %d/%d", sc.ah, sc.al)
		}
		if fs.subsampled() {
			return corrupted(m, d.segmentOffset, "subsampled components in a lossless frame")
		}
		if sc.predictor != 1 {
			fs.firstOrder = false
		}
	} else if sc.ss != 0 || sc.se != 63 || sc.ah != 0 || sc.al != 0 {
		return corrupted(m, d.segmentOffset, "spectral selection %d-%d, approximation %d/%d in a sequential scan", sc.ss, sc.se, sc.ah, sc.al)
	}

	for _, c := range sc.channels {
		if err := d.checkTables(m, c); err != nil {
			return err
		}
		c.pointTransform = sc.al
	}

	fs.scan = sc
	fs.computeMcuGeometry(sc)
	fs.state = stateScanActive
	slog.Debug("jpeg: SOS parsed",
		slog.Int("components", ns),
		slog.Int("predictor", sc.predictor),
		slog.Int("pointTransform", sc.al),
		slog.Int("mcus", sc.totalMCUs()))

	if err := d.decodeScan(); err != nil {
		return err
	}
	fs.scans++
	if !fs.eoi {
		fs.state = stateFrameDefined
	}
	return nil
}

// checkTables resolves the tables a scan component refers to, installing
// the built-in Huffman tables when the stream defines none and the caller
// asked for them.
func (d *decoder) checkTables(m Marker, c *channel) error {
	fs := d.fs
	chroma := c.index > 0
	if fs.dc[c.dcIdx] == nil && d.opts.DefaultHuffmanTables {
		fs.dc[c.dcIdx] = defaultHuffmanTable(classDC, chroma)
	}
	if fs.dc[c.dcIdx] == nil {
		return corrupted(m, d.segmentOffset, "component %d: DC table %d undefined", c.id, c.dcIdx)
	}
	if fs.process.Lossless() {
		return nil
	}
	if fs.ac[c.acIdx] == nil && d.opts.DefaultHuffmanTables {
		fs.ac[c.acIdx] = defaultHuffmanTable(classAC, chroma)
	}
	if fs.ac[c.acIdx] == nil {
		return corrupted(m, d.segmentOffset, "component %d: AC table %d undefined", c.id, c.acIdx)
	}
	if fs.quant[c.quantIdx] == nil {
		return corrupted(m, d.segmentOffset, "component %d: quantization table %d undefined", c.id, c.quantIdx)
	}
	return nil
}

func (scanHeader) writeSegment(e *encoder, m Marker) error {
	sc := e.fs.scan
	if err := e.bw.writeMarker(m); err != nil {
		return err
	}
	if err := e.bw.writeUint16(6 + 2*len(sc.channels)); err != nil {
		return err
	}
	body := []byte{byte(len(sc.channels))}
	for _, c := range sc.channels {
		body = append(body, c.id, byte(c.dcIdx<<4|c.acIdx))
	}
	body = append(body, byte(sc.ss), byte(sc.se), byte(sc.ah<<4|sc.al))
	return e.bw.write(body)
}

// restartSegment handles RSTn. It is only reached from the scan engine.
type restartSegment struct{}

func (restartSegment) readSegment(d *decoder, m Marker, _ int) error {
	fs := d.fs
	if fs.state != stateScanActive || fs.restartInterval == 0 {
		return corrupted(m, d.segmentOffset, "restart marker outside a restart-enabled scan")
	}
	fs.flushAllPending()
	expected := fs.restartCount & 7
	got := int(m - RST0)
	skip := (got - expected) & 7
	if skip > 0 {
		slog.Warn("jpeg: restart marker out of sequence, resynchronizing",
			slog.Int("expected", expected),
			slog.Int("got", got),
			slog.Int("skippedIntervals", skip))
	}
	fs.restartCount += 1 + skip
	next := min(fs.restartCount*fs.restartInterval, fs.scan.totalMCUs())
	fs.mcusProcessed = next
	fs.resetPredictors(next)
	d.br.resetBitCursor()
	return nil
}

func (restartSegment) writeSegment(e *encoder, m Marker) error {
	return e.bw.writeMarker(m)
}

type endOfImage struct{}

func (endOfImage) readSegment(d *decoder, m Marker, _ int) error {
	if d.fs.scans == 0 {
		return corrupted(m, d.segmentOffset, "end of image before any scan")
	}
	d.fs.eoi = true
	d.fs.state = stateEndOfImage
	return nil
}

func (endOfImage) writeSegment(e *encoder, m Marker) error {
	return e.bw.writeMarker(m)
}

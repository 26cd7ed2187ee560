package jpeg

import (
	"bufio"
	"errors"
	"io"
)

var (
	errEOIInScan    = errors.New("jpeg: end of image inside entropy-coded data")
	errMarkerInScan = errors.New("jpeg: marker inside entropy-coded data")
)

// bitReader reads bytes and bits from a stream, undoing 0xFF00 byte stuffing
// while escape mode is active.
type bitReader struct {
	r      *bufio.Reader
	pos    int64  // bytes consumed from r
	acc    uint32 // bit accumulator, low nbits are unread
	nbits  int
	escape bool

	// pending is a marker found by an escaped read whose code byte was
	// consumed but not yet handed to the marker protocol. Zero means none.
	pending Marker
}

func newBitReader(r io.Reader) *bitReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &bitReader{r: br}
}

// rawByte reads one byte ignoring escape mode.
func (b *bitReader) rawByte() (byte, error) {
	c, err := b.r.ReadByte()
	if err != nil {
		return 0, err
	}
	b.pos++
	return c, nil
}

// readByte reads one byte. In escape mode 0xFF 0x00 yields 0xFF, fill bytes
// are skipped, and any other marker is left pending and fails the read.
func (b *bitReader) readByte() (byte, error) {
	if b.pending != 0 {
		if b.pending == EOI {
			return 0, errEOIInScan
		}
		return 0, errMarkerInScan
	}
	c, err := b.rawByte()
	if err != nil || c != 0xFF || !b.escape {
		return c, err
	}
	for {
		next, err := b.rawByte()
		if err != nil {
			return 0, err
		}
		switch next {
		case 0xFF:
			continue
		case 0x00:
			return 0xFF, nil
		}
		b.pending = Marker(next)
		if b.pending == EOI {
			return 0, errEOIInScan
		}
		return 0, errMarkerInScan
	}
}

func (b *bitReader) readBit() (uint32, error) {
	if b.nbits == 0 {
		c, err := b.readByte()
		if err != nil {
			return 0, err
		}
		b.acc = uint32(c)
		b.nbits = 8
	}
	b.nbits--
	return (b.acc >> b.nbits) & 1, nil
}

// readBits returns n bits (n <= 32) MSB first in the low end of the result.
func (b *bitReader) readBits(n int) (uint32, error) {
	var v uint32
	for n > 0 {
		if b.nbits == 0 {
			c, err := b.readByte()
			if err != nil {
				return 0, err
			}
			b.acc = uint32(c)
			b.nbits = 8
		}
		take := min(n, b.nbits)
		b.nbits -= take
		v = v<<take | (b.acc>>b.nbits)&(1<<take-1)
		n -= take
	}
	return v, nil
}

// resetBitCursor drops the unread bits of the current byte.
func (b *bitReader) resetBitCursor() {
	b.acc = 0
	b.nbits = 0
}

func (b *bitReader) readUint16() (int, error) {
	hi, err := b.readByte()
	if err != nil {
		return 0, err
	}
	lo, err := b.readByte()
	if err != nil {
		return 0, err
	}
	return int(hi)<<8 | int(lo), nil
}

func (b *bitReader) readFull(p []byte) error {
	n, err := io.ReadFull(b.r, p)
	b.pos += int64(n)
	return err
}

func (b *bitReader) skipForward(n int) error {
	d, err := b.r.Discard(n)
	b.pos += int64(d)
	return err
}

func (b *bitReader) atEnd() bool {
	if b.pending != 0 {
		return false
	}
	_, err := b.r.Peek(1)
	return err != nil
}

// nextMarker returns the next marker and its offset, skipping any bytes that
// are not part of a marker.
func (b *bitReader) nextMarker() (Marker, int64, error) {
	if m := b.pending; m != 0 {
		b.pending = 0
		return m, b.pos - 2, nil
	}
	for {
		c, err := b.rawByte()
		if err != nil {
			return 0, b.pos, err
		}
		if c != 0xFF {
			continue
		}
		for c == 0xFF {
			if c, err = b.rawByte(); err != nil {
				return 0, b.pos, err
			}
		}
		if c != 0x00 {
			return Marker(c), b.pos - 2, nil
		}
	}
}

// bitWriter writes bytes and bits, stuffing a 0x00 after every 0xFF written
// while escape mode is active.
type bitWriter struct {
	w      *bufio.Writer
	pos    int64
	acc    uint32
	nbits  int
	escape bool
}

func newBitWriter(w io.Writer) *bitWriter {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &bitWriter{w: bw}
}

func (b *bitWriter) writeByte(c byte) error {
	if err := b.w.WriteByte(c); err != nil {
		return err
	}
	b.pos++
	if c == 0xFF && b.escape {
		if err := b.w.WriteByte(0x00); err != nil {
			return err
		}
		b.pos++
	}
	return nil
}

// writeBits appends the low n bits of v, MSB first.
func (b *bitWriter) writeBits(v uint32, n int) error {
	for n > 0 {
		take := min(n, 16)
		n -= take
		b.acc = b.acc<<take | (v>>n)&(1<<take-1)
		b.nbits += take
		for b.nbits >= 8 {
			b.nbits -= 8
			if err := b.writeByte(byte(b.acc >> b.nbits)); err != nil {
				return err
			}
		}
		b.acc &= 1<<b.nbits - 1
	}
	return nil
}

// resetBitCursor pads the partial byte with 1 bits.
func (b *bitWriter) resetBitCursor() error {
	if b.nbits == 0 {
		return nil
	}
	return b.writeBits(1<<(8-b.nbits)-1, 8-b.nbits)
}

func (b *bitWriter) writeUint16(v int) error {
	if err := b.writeByte(byte(v >> 8)); err != nil {
		return err
	}
	return b.writeByte(byte(v))
}

func (b *bitWriter) write(p []byte) error {
	n, err := b.w.Write(p)
	b.pos += int64(n)
	return err
}

// writeMarker byte-aligns and writes 0xFF m without stuffing.
func (b *bitWriter) writeMarker(m Marker) error {
	if err := b.resetBitCursor(); err != nil {
		return err
	}
	escape := b.escape
	b.escape = false
	defer func() { b.escape = escape }()
	if err := b.writeByte(0xFF); err != nil {
		return err
	}
	return b.writeByte(byte(m))
}

func (b *bitWriter) flush() error {
	if err := b.resetBitCursor(); err != nil {
		return err
	}
	return b.w.Flush()
}

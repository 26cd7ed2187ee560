package jpeg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitWriter_Stuffing(t *testing.T) {
	var buf bytes.Buffer
	bw := newBitWriter(&buf)
	bw.escape = true
	require.NoError(t, bw.writeBits(0xFF, 8))
	require.NoError(t, bw.writeBits(0x12, 8))
	require.NoError(t, bw.writeBits(0x7, 3)) // padded with ones to 0xFF
	require.NoError(t, bw.writeMarker(EOI))
	require.NoError(t, bw.flush())

	assert.Equal(t, []byte{0xFF, 0x00, 0x12, 0xFF, 0x00, 0xFF, 0xD9}, buf.Bytes())
	assert.Equal(t, int64(7), bw.pos)
}

func TestBitReader_Unstuffing(t *testing.T) {
	data := []byte{0xFF, 0x00, 0xA5, 0xFF, 0xFF, 0x00, 0xFF, 0xD0}
	br := newBitReader(bytes.NewReader(data))
	br.escape = true

	v, err := br.readBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF), v)

	v, err = br.readBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xA), v)

	// the rest of 0xA5, then the fill byte pair decodes to 0xFF
	v, err = br.readBits(12)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5FF), v)

	_, err = br.readBit()
	assert.ErrorIs(t, err, errMarkerInScan)
	assert.Equal(t, RST0, br.pending)
	assert.False(t, br.atEnd())

	m, off, err := br.nextMarker()
	require.NoError(t, err)
	assert.Equal(t, RST0, m)
	assert.Equal(t, int64(6), off)
	assert.True(t, br.atEnd())
}

func TestBitReader_EOIInScan(t *testing.T) {
	br := newBitReader(bytes.NewReader([]byte{0x80, 0xFF, 0xD9}))
	br.escape = true
	bit, err := br.readBit()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), bit)
	_, err = br.readBits(8)
	assert.ErrorIs(t, err, errEOIInScan)
	// the error is sticky until the marker is consumed
	_, err = br.readByte()
	assert.ErrorIs(t, err, errEOIInScan)
}

func TestBitReader_ReadBitsWide(t *testing.T) {
	br := newBitReader(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x80}))
	v, err := br.readBits(32)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
	v, err = br.readBits(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
	br.resetBitCursor()
	_, err = br.readBit()
	assert.Error(t, err)
}

func TestBitReader_NextMarkerSkipsGarbage(t *testing.T) {
	data := []byte{0x00, 0x13, 0xFF, 0x00, 0xFF, 0xFF, 0xFF, 0xDB, 0x00}
	br := newBitReader(bytes.NewReader(data))
	m, off, err := br.nextMarker()
	require.NoError(t, err)
	assert.Equal(t, DQT, m)
	assert.Equal(t, int64(6), off)

	n, err := br.readUint16()
	assert.Error(t, err, "only one byte left")
	assert.Zero(t, n)
}

func TestBitReader_SkipForward(t *testing.T) {
	br := newBitReader(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	require.NoError(t, br.skipForward(3))
	c, err := br.readByte()
	require.NoError(t, err)
	assert.Equal(t, byte(4), c)
	assert.Error(t, br.skipForward(2))
}

func TestMarker_String(t *testing.T) {
	tests := map[Marker]string{
		SOF0:     "SOF0",
		SOF2:     "SOF2",
		SOF3:     "SOF3",
		RST0 + 5: "RST5",
		APP0 + 1: "APP1",
		COM:      "COM",
		0x02:     "0x02",
	}
	for m, want := range tests {
		assert.Equal(t, want, m.String())
	}
}

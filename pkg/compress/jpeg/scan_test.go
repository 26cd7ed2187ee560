package jpeg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markerOffsets returns the offsets of every marker in data accepted by keep.
// Inside entropy-coded data only restart markers can match.
func markerOffsets(data []byte, keep func(Marker) bool) []int {
	var out []int
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xFF && data[i+1] != 0x00 && data[i+1] != 0xFF && keep(Marker(data[i+1])) {
			out = append(out, i)
		}
	}
	return out
}

func isRestart(m Marker) bool {
	return kindOf(m) == kindRestart
}

// newBlockDecoder prepares a single-component baseline scan over a row of
// 8x8 blocks, reading entropy data from data.
func newBlockDecoder(data []byte, blocks int, ac *huffmanTable) (*decoder, *channel) {
	d := newDecoder(bytes.NewReader(data), nil)
	fs := d.fs
	fs.process = ProcessBaseline
	fs.precision = 8
	fs.width, fs.height = 8*blocks, 8
	c := fs.addChannel(1, 1, 1, 0)
	fs.allocate()
	fs.quant[0] = unitQuant()
	fs.dc[0] = defaultHuffmanTable(classDC, false)
	fs.ac[0] = ac
	sc := &scanState{channels: []*channel{c}, se: 63}
	fs.scan = sc
	fs.computeMcuGeometry(sc)
	fs.resetPredictors(0)
	fs.state = stateScanActive
	d.br.escape = true
	return d, c
}

type codedSymbol struct {
	table *huffmanTable
	sym   byte
	extra uint32
	n     int
}

func entropyData(t *testing.T, symbols ...codedSymbol) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := newBitWriter(&buf)
	bw.escape = true
	for _, s := range symbols {
		require.NoError(t, bitEmitter{&encoder{bw: bw}}.symbol(s.table, s.sym, s.extra, s.n))
	}
	require.NoError(t, bw.flush())
	return buf.Bytes()
}

func blockSamples(c *channel, x int) [blockSize]int32 {
	var out [blockSize]int32
	for r := 0; r < 8; r++ {
		copy(out[r*8:r*8+8], c.samples[r*c.stride+x:])
	}
	return out
}

func TestDecodeBlock_ZeroRunLength(t *testing.T) {
	dc, ac := defaultHuffmanTable(classDC, false), defaultHuffmanTable(classAC, false)
	data := entropyData(t,
		codedSymbol{dc, 0x00, 0, 0},
		codedSymbol{ac, 0xF0, 0, 0}, // 16 zeros
		codedSymbol{ac, 0x31, 1, 1}, // 3 zeros then +1 at zig-zag index 20
		codedSymbol{ac, 0x00, 0, 0},
	)
	d, c := newBlockDecoder(data, 1, ac)
	require.NoError(t, d.decodeBlock(c, 0, 0))

	var coef [blockSize]int32
	coef[zigzag[20]] = 1
	var want [blockSize]int32
	inverseDCT(&coef, unitQuant(), &want)
	for i := range want {
		want[i] = min(max(want[i]+128, 0), 255)
	}
	assert.Equal(t, want, blockSamples(c, 0))
}

func TestDecodeBlock_RunPastEndOfBlock(t *testing.T) {
	dc, ac := defaultHuffmanTable(classDC, false), defaultHuffmanTable(classAC, false)
	zrl := codedSymbol{ac, 0xF0, 0, 0}
	tests := []struct {
		name string
		tail codedSymbol
	}{
		{"fourth zero run", zrl},
		{"coefficient at index 64", codedSymbol{ac, 0xF1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := entropyData(t, codedSymbol{dc, 0x00, 0, 0}, zrl, zrl, zrl, tt.tail)
			d, c := newBlockDecoder(data, 1, ac)
			assert.ErrorIs(t, d.decodeBlock(c, 0, 0), ErrCorrupted)
		})
	}
}

func TestDecodeBlock_EndOfBlockRun(t *testing.T) {
	dc := defaultHuffmanTable(classDC, false)
	// 0x10 (EOB run of 2 + 1 extra bit) gets code "0"
	ac, err := newHuffmanTable([maxCodeLength]int{1, 2}, []byte{0x10, 0x00, 0x01})
	require.NoError(t, err)
	data := entropyData(t,
		codedSymbol{dc, 0x00, 0, 0},
		codedSymbol{ac, 0x10, 1, 1}, // this block and the next two have no AC terms
		codedSymbol{dc, 0x04, 8, 4}, // DC difference +8, no AC symbols follow
		codedSymbol{dc, 0x00, 0, 0},
	)
	d, c := newBlockDecoder(data, 3, ac)
	for b := 0; b < 3; b++ {
		require.NoError(t, d.decodeBlock(c, 8*b, 0), "block %d", b)
	}
	assert.Zero(t, d.fs.eobRun)
	assert.Equal(t, int32(8), c.lastDC)
	for i, v := range blockSamples(c, 0) {
		require.Equal(t, int32(128), v, "block 0 sample %d", i)
	}
	for _, x := range []int{8, 16} {
		for i, v := range blockSamples(c, x) {
			require.Equal(t, int32(129), v, "block at %d sample %d", x, i)
		}
	}
}

func TestCategoryMagnitudeExtend(t *testing.T) {
	tests := []struct {
		v   int32
		cat int
	}{
		{0, 0},
		{1, 1}, {-1, 1},
		{2, 2}, {-3, 2},
		{255, 8}, {-255, 8},
		{1023, 10}, {-1024, 11},
		{32767, 15}, {-32767, 15},
		{-32768, 16},
	}
	for _, tt := range tests {
		s := category(tt.v)
		require.Equal(t, tt.cat, s, "category(%d)", tt.v)
		if s == 0 {
			continue
		}
		assert.Equal(t, tt.v, extend(magnitude(tt.v, s), s), "value %d", tt.v)
	}
}

func TestLossless_DifferenceCategories(t *testing.T) {
	tests := []struct {
		name    string
		samples []int32
		want    byte
	}{
		{"flat image codes only category 0", []int32{32768, 32768, 32768, 32768}, 0},
		{"half-range jump codes category 16", []int32{0, 32768, 0, 65535, 32767, 0}, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.samples)
			pd := &PixelData{Width: n, Height: 1, Precision: 16, Planes: []Plane{
				{ID: 1, H: 1, V: 1, Width: n, Height: 1, Samples: tt.samples},
			}}
			var buf bytes.Buffer
			e := newEncoder(&buf, pd, (&EncodeOptions{Process: ProcessLossless}).withDefaults())
			require.NoError(t, e.encode())
			assert.Contains(t, e.fs.dc[0].symbols, tt.want)

			got, err := Decode(&buf, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.samples, got.Planes[0].Samples)
		})
	}
}

func TestLossless_PredictorAtRestartBoundaries(t *testing.T) {
	for predictor := 1; predictor <= 7; predictor++ {
		for _, ri := range []int{1, 3, 7, 8} {
			pd := testPixelData(7, 5, 10, false, 100, sampling{1, 1}, sampling{1, 1})
			got, _ := roundTrip(t, pd, &EncodeOptions{
				Process:         ProcessLossless,
				Predictor:       predictor,
				RestartInterval: ri,
			}, nil)
			for i := range pd.Planes {
				require.Equal(t, pd.Planes[i].Samples, got.Planes[i].Samples, "predictor %d interval %d plane %d", predictor, ri, i)
			}
		}
	}
}

func TestRestart_DataAfterLastIntervalIsIsolated(t *testing.T) {
	pd := testPixelData(64, 16, 8, false, 10, sampling{1, 1})
	clean, data := roundTrip(t, pd, &EncodeOptions{RestartInterval: 2}, nil)

	rst := markerOffsets(data, isRestart)
	require.Len(t, rst, 7, "16 MCUs in intervals of 2")
	last := rst[len(rst)-1]
	corrupt := append(bytes.Clone(data[:last+5]), 0xFF, 0xD9)

	got, err := Decode(bytes.NewReader(corrupt), nil)
	require.NoError(t, err)
	assert.True(t, got.Truncated)

	// MCUs 0-13 precede the final restart marker
	for mcu := 0; mcu < 14; mcu++ {
		x0, y0 := (mcu%8)*8, (mcu/8)*8
		for y := y0; y < y0+8; y++ {
			for x := x0; x < x0+8; x++ {
				require.Equal(t, clean.Planes[0].At(x, y), got.Planes[0].At(x, y), "MCU %d (%d,%d)", mcu, x, y)
			}
		}
	}
}

func TestRestart_DroppedIntervalResynchronizes(t *testing.T) {
	pd := testPixelData(16, 6, 8, false, 30, sampling{1, 1})
	_, data := roundTrip(t, pd, &EncodeOptions{Process: ProcessLossless, RestartInterval: 16}, nil)
	rst := markerOffsets(data, isRestart)
	require.Len(t, rst, 5)

	tests := []struct {
		name    string
		corrupt []byte
	}{
		// RST0 and row 1 are gone: RST1 arrives where RST0 was due
		{"missing marker", append(bytes.Clone(data[:rst[0]]), data[rst[1]:]...)},
		// row 1 is empty: RST1 arrives inside the interval
		{"missing interval data", append(bytes.Clone(data[:rst[0]+2]), data[rst[1]:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(bytes.NewReader(tt.corrupt), nil)
			require.NoError(t, err)
			assert.False(t, got.Truncated)
			for y := 0; y < 6; y++ {
				for x := 0; x < 16; x++ {
					want := pd.Planes[0].At(x, y)
					if y == 1 {
						want = 0
					}
					require.Equal(t, want, got.Planes[0].At(x, y), "(%d,%d)", x, y)
				}
			}
		})
	}
}

func TestRestart_SequenceWraps(t *testing.T) {
	pd := testPixelData(40, 1, 8, false, 50, sampling{1, 1})
	got, data := roundTrip(t, pd, &EncodeOptions{Process: ProcessLossless, RestartInterval: 2}, nil)
	rst := markerOffsets(data, isRestart)
	require.Len(t, rst, 19)
	for i, off := range rst {
		assert.Equal(t, RST0+Marker(i%8), Marker(data[off+1]))
	}
	assert.Equal(t, pd.Planes[0].Samples, got.Planes[0].Samples)
}

func TestDecode_TruncatedStream(t *testing.T) {
	pd := testPixelData(32, 32, 8, false, 10, sampling{1, 1})
	_, data := roundTrip(t, pd, nil, nil)
	got, err := Decode(bytes.NewReader(data[:len(data)*3/5]), nil)
	require.NoError(t, err)
	assert.True(t, got.Truncated)
	assert.Zero(t, got.Planes[0].At(31, 31))
}

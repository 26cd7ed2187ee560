package jpeg

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripSymbols encodes every symbol of h and decodes it back.
func roundTripSymbols(t *testing.T, h *huffmanTable) {
	t.Helper()
	var buf bytes.Buffer
	bw := newBitWriter(&buf)
	for _, s := range h.symbols {
		require.NoError(t, h.encodeSymbol(bw, s))
	}
	require.NoError(t, bw.flush())

	br := newBitReader(&buf)
	for _, want := range h.symbols {
		got, err := h.decodeSymbol(br)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func kraftSum(counts [maxCodeLength]int) float64 {
	sum := 0.0
	for i, n := range counts {
		sum += float64(n) / float64(uint(1)<<(i+1))
	}
	return sum
}

func TestHuffmanTable_DefaultTablesCanonical(t *testing.T) {
	for _, class := range []huffmanClass{classDC, classAC} {
		for _, chroma := range []bool{false, true} {
			h := defaultHuffmanTable(class, chroma)
			roundTripSymbols(t, h)
			assert.LessOrEqual(t, kraftSum(h.counts), 1.0)
		}
	}
}

func TestHuffmanTable_CanonicalCodes(t *testing.T) {
	// lengths 2,2,3,3,3,4,4 give 00 01 100 101 110 1110 1111
	counts := [maxCodeLength]int{0, 2, 3, 2}
	symbols := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70}
	h, err := newHuffmanTable(counts, symbols)
	require.NoError(t, err)

	tests := []struct {
		sym  byte
		code uint16
		size uint8
	}{
		{0x10, 0b00, 2},
		{0x20, 0b01, 2},
		{0x30, 0b100, 3},
		{0x40, 0b101, 3},
		{0x50, 0b110, 3},
		{0x60, 0b1110, 4},
		{0x70, 0b1111, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, h.code[tt.sym], "code of %#x", tt.sym)
		assert.Equal(t, tt.size, h.size[tt.sym], "size of %#x", tt.sym)
	}
	roundTripSymbols(t, h)
}

func TestHuffmanTable_OverSubscribed(t *testing.T) {
	counts := [maxCodeLength]int{3}
	_, err := newHuffmanTable(counts, []byte{1, 2, 3})
	assert.Error(t, err)

	counts = [maxCodeLength]int{0, 2}
	_, err = newHuffmanTable(counts, []byte{1})
	assert.Error(t, err, "symbol count mismatch")
}

func TestHuffmanTable_InvalidCode(t *testing.T) {
	// a single code "0": reading sixteen 1 bits matches nothing
	h, err := newHuffmanTable([maxCodeLength]int{1}, []byte{7})
	require.NoError(t, err)
	br := newBitReader(bytes.NewReader([]byte{0xFF, 0x00, 0xFF, 0x00}))
	br.escape = true
	_, err = h.decodeSymbol(br)
	assert.ErrorIs(t, err, errBadHuffmanCode)
}

func TestHuffmanTable_OptimizeFromFrequencies(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tests := []struct {
		name string
		freq func(sym int) int
		n    int
	}{
		{"single symbol", func(int) int { return 42 }, 1},
		{"two symbols", func(s int) int { return s + 1 }, 2},
		{"uniform", func(int) int { return 3 }, 256},
		{"random", func(int) int { return 1 + rng.IntN(1000) }, 200},
		// Fibonacci weights produce a tree deeper than 16 levels
		{"skewed", fibonacci, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &huffmanTable{}
			for s := 0; s < tt.n; s++ {
				h.freq[s] = tt.freq(s)
			}
			require.NoError(t, h.optimize())
			assert.Equal(t, tt.n, h.numSymbols())
			assert.Len(t, h.symbols, tt.n)
			assert.Less(t, kraftSum(h.counts), 1.0, "the all-ones code stays unused")
			for s := 0; s < tt.n; s++ {
				assert.NotZero(t, h.size[s])
				assert.LessOrEqual(t, int(h.size[s]), maxCodeLength)
			}
			roundTripSymbols(t, h)
		})
	}
}

func fibonacci(n int) int {
	a, b := 1, 1
	for range n {
		a, b = b, a+b
	}
	return a
}

func TestHuffmanTable_FrequentSymbolsGetShorterCodes(t *testing.T) {
	h := &huffmanTable{}
	for range 1000 {
		h.incrementFrequency(0x00)
	}
	for range 10 {
		h.incrementFrequency(0x01)
	}
	h.incrementFrequency(0x02)
	require.NoError(t, h.optimize())
	assert.Less(t, h.size[0x00], h.size[0x02])

	h.resetFrequencies()
	assert.Zero(t, h.freq[0x00])
}

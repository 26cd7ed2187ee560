package jpeg

import (
	"errors"
	"fmt"
)

const (
	maxCodeLength    = 16
	maxHuffmanSymbol = 256
	// numHuffmanSlots is the table id range addressable by Th in DHT.
	numHuffmanSlots = 16
)

var errBadHuffmanCode = errors.New("jpeg: invalid Huffman code")

// huffmanClass is Tc of DHT.
type huffmanClass int

const (
	classDC huffmanClass = 0
	classAC huffmanClass = 1
)

func (c huffmanClass) String() string {
	if c == classDC {
		return "DC"
	}
	return "AC"
}

// huffmanTable is a canonical Huffman table usable for both directions.
type huffmanTable struct {
	counts  [maxCodeLength]int // counts[i] is the number of codes of length i+1
	symbols []byte             // symbols ordered by code length

	// decode tables, indexed by code length (1-16)
	mincode [maxCodeLength + 1]int32
	maxcode [maxCodeLength + 1]int32
	valptr  [maxCodeLength + 1]int

	// encode tables, indexed by symbol
	freq [maxHuffmanSymbol + 1]int
	code [maxHuffmanSymbol]uint16
	size [maxHuffmanSymbol]uint8
}

func (h *huffmanTable) setCodeLengthCounts(counts [maxCodeLength]int) {
	h.counts = counts
}

func (h *huffmanTable) setOrderedSymbols(symbols []byte) {
	h.symbols = append(h.symbols[:0], symbols...)
}

func (h *huffmanTable) numSymbols() int {
	n := 0
	for _, c := range h.counts {
		n += c
	}
	return n
}

// buildDecodeTables derives mincode, maxcode and valptr (T.81 F.2.2.3).
func (h *huffmanTable) buildDecodeTables() error {
	total := h.numSymbols()
	if total > maxHuffmanSymbol || total != len(h.symbols) {
		return fmt.Errorf("%d symbols declared, %d present", total, len(h.symbols))
	}
	code, k := int32(0), 0
	for l := 1; l <= maxCodeLength; l++ {
		n := h.counts[l-1]
		h.mincode[l], h.maxcode[l], h.valptr[l] = 0, -1, 0
		if n > 0 {
			h.valptr[l] = k
			h.mincode[l] = code
			code += int32(n)
			k += n
			h.maxcode[l] = code - 1
			if code > 1<<l {
				return fmt.Errorf("code lengths over-subscribed at length %d", l)
			}
		}
		code <<= 1
	}
	return h.buildEncodeTable()
}

// decodeSymbol reads one code bit by bit.
func (h *huffmanTable) decodeSymbol(br *bitReader) (byte, error) {
	var code int32
	for l := 1; l <= maxCodeLength; l++ {
		bit, err := br.readBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | int32(bit)
		if code <= h.maxcode[l] {
			return h.symbols[h.valptr[l]+int(code-h.mincode[l])], nil
		}
	}
	return 0, errBadHuffmanCode
}

func (h *huffmanTable) incrementFrequency(symbol byte) {
	h.freq[symbol]++
}

func (h *huffmanTable) resetFrequencies() {
	h.freq = [maxHuffmanSymbol + 1]int{}
}

// buildCodeLengths computes length-limited code lengths from the gathered
// frequencies (T.81 K.2). A reserved symbol with the lowest frequency is
// included so that no real symbol receives the all-ones code; call
// removeReservedSymbol afterwards.
func (h *huffmanTable) buildCodeLengths(maxLength int) {
	var (
		freq     = h.freq
		codesize [maxHuffmanSymbol + 1]int
		others   [maxHuffmanSymbol + 1]int
	)
	freq[maxHuffmanSymbol] = 1
	for i := range others {
		others[i] = -1
	}
	for {
		c1, c2 := -1, -1
		v := int(^uint(0) >> 1)
		for i, f := range freq {
			if f > 0 && f <= v {
				v, c1 = f, i
			}
		}
		v = int(^uint(0) >> 1)
		for i, f := range freq {
			if f > 0 && f <= v && i != c1 {
				v, c2 = f, i
			}
		}
		if c2 < 0 {
			break
		}
		freq[c1] += freq[c2]
		freq[c2] = 0
		codesize[c1]++
		for others[c1] >= 0 {
			c1 = others[c1]
			codesize[c1]++
		}
		others[c1] = c2
		codesize[c2]++
		for others[c2] >= 0 {
			c2 = others[c2]
			codesize[c2]++
		}
	}

	var bits [2 * maxHuffmanSymbol]int
	longest := 0
	for _, s := range codesize {
		if s > 0 {
			bits[s]++
			longest = max(longest, s)
		}
	}
	for i := longest; i > maxLength; i-- {
		for bits[i] > 0 {
			j := i - 2
			for bits[j] == 0 {
				j--
			}
			bits[i] -= 2
			bits[i-1]++
			bits[j+1] += 2
			bits[j]--
		}
	}

	h.counts = [maxCodeLength]int{}
	for l := 1; l <= maxLength; l++ {
		h.counts[l-1] = bits[l]
	}
	h.symbols = h.symbols[:0]
	for s := 1; s <= longest; s++ {
		for sym := 0; sym < maxHuffmanSymbol; sym++ {
			if codesize[sym] == s {
				h.symbols = append(h.symbols, byte(sym))
			}
		}
	}
}

// removeReservedSymbol drops the reserved code from the longest length.
func (h *huffmanTable) removeReservedSymbol() {
	for l := maxCodeLength; l > 0; l-- {
		if h.counts[l-1] > 0 {
			h.counts[l-1]--
			return
		}
	}
}

// buildEncodeTable assigns canonical codes to the ordered symbols.
func (h *huffmanTable) buildEncodeTable() error {
	h.code = [maxHuffmanSymbol]uint16{}
	h.size = [maxHuffmanSymbol]uint8{}
	code, k := uint32(0), 0
	for l := 1; l <= maxCodeLength; l++ {
		for j := 0; j < h.counts[l-1]; j++ {
			if k >= len(h.symbols) {
				return fmt.Errorf("symbol list shorter than code length counts")
			}
			h.code[h.symbols[k]] = uint16(code)
			h.size[h.symbols[k]] = uint8(l)
			code++
			k++
		}
		code <<= 1
	}
	return nil
}

// optimize rebuilds the table from the gathered frequencies.
func (h *huffmanTable) optimize() error {
	h.buildCodeLengths(maxCodeLength)
	h.removeReservedSymbol()
	return h.buildDecodeTables()
}

func (h *huffmanTable) encodeSymbol(bw *bitWriter, symbol byte) error {
	size := h.size[symbol]
	if size == 0 {
		return fmt.Errorf("jpeg: symbol 0x%02X has no Huffman code", symbol)
	}
	return bw.writeBits(uint32(h.code[symbol]), int(size))
}

// clone returns a deep copy, used to hand out the built-in tables.
func (h *huffmanTable) clone() *huffmanTable {
	c := *h
	c.symbols = append([]byte(nil), h.symbols...)
	return &c
}

// newHuffmanTable builds a decode/encode table from a DHT specification.
func newHuffmanTable(counts [maxCodeLength]int, symbols []byte) (*huffmanTable, error) {
	h := &huffmanTable{}
	h.setCodeLengthCounts(counts)
	h.setOrderedSymbols(symbols)
	if err := h.buildDecodeTables(); err != nil {
		return nil, err
	}
	return h, nil
}

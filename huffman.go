package rawdec

import (
	"fmt"
	"slices"

	"github.com/gogpu/rawdec/bitpump"
	"github.com/gogpu/rawdec/internal/cache"
)

const (
	// lutBits is the code length resolved by a single table lookup.
	lutBits = 9

	maxCodeLength = 16

	// maxDiffCategory is the largest lossless JPEG difference magnitude
	// category; category 16 stands for -32768 and carries no extra bits.
	maxDiffCategory = 16
)

// tableCacheSize bounds the distinct DHT tables kept per decompressor.
// Tiled images usually repeat one or two.
const tableCacheSize = 16

// tableCache shares Huffman tables between slices that carry identical
// DHT segments. Tables are read-only after construction.
type tableCache = cache.Cache[string, cachedTable]

type cachedTable struct {
	table *huffmanTable
	err   error
}

func newTableCache() *tableCache {
	return cache.New[string, cachedTable](tableCacheSize)
}

// lookupHuffmanTable returns the table for counts and symbols, building it
// once per distinct definition when c is not nil.
func lookupHuffmanTable(c *tableCache, counts [maxCodeLength]uint8, symbols []uint8) (*huffmanTable, error) {
	if c == nil {
		return newHuffmanTable(counts, slices.Clone(symbols))
	}
	key := string(counts[:]) + string(symbols)
	e := c.GetOrCreate(key, func() cachedTable {
		t, err := newHuffmanTable(counts, slices.Clone(symbols))
		return cachedTable{t, err}
	})
	return e.table, e.err
}

// huffmanTable decodes lossless JPEG difference categories.
//
// Codes up to lutBits long resolve with one lookup; longer ones fall back
// to the canonical maxcode walk.
type huffmanTable struct {
	// lut entries are length<<8 | symbol; zero marks a longer code.
	lut [1 << lutBits]uint16

	maxcode [maxCodeLength + 1]int32 // -1 when no code has this length
	mincode [maxCodeLength + 1]int32
	valptr  [maxCodeLength + 1]int32
	symbols []uint8
}

// newHuffmanTable builds a table from a DHT segment's code counts (index
// 0 counts codes of length 1) and its symbols in code order.
func newHuffmanTable(counts [maxCodeLength]uint8, symbols []uint8) (*huffmanTable, error) {
	total := 0
	for _, c := range counts {
		total += int(c)
	}
	if total == 0 || total != len(symbols) {
		return nil, fmt.Errorf("%w: huffman table with %d codes and %d symbols", ErrCorrupt, total, len(symbols))
	}
	for _, s := range symbols {
		if s > maxDiffCategory {
			return nil, fmt.Errorf("%w: huffman symbol %d", ErrCorrupt, s)
		}
	}

	h := &huffmanTable{symbols: symbols}
	code := int32(0)
	k := 0
	for l := 1; l <= maxCodeLength; l++ {
		n := int(counts[l-1])
		h.valptr[l] = int32(k)
		h.mincode[l] = code
		h.maxcode[l] = -1
		if n > 0 {
			h.maxcode[l] = code + int32(n) - 1
		}
		for range n {
			if code >= 1<<l {
				return nil, fmt.Errorf("%w: huffman code lengths oversubscribed at %d bits", ErrCorrupt, l)
			}
			if l <= lutBits {
				entry := uint16(l)<<8 | uint16(symbols[k])
				first := code << (lutBits - l)
				for j := range int32(1) << (lutBits - l) {
					h.lut[first+j] = entry
				}
			}
			code++
			k++
		}
		code <<= 1
	}
	return h, nil
}

// decodeCategory reads one code and returns its symbol.
// The pump must hold at least maxCodeLength cached bits.
func (h *huffmanTable) decodeCategory(p *bitpump.MSB) (int, error) {
	if e := h.lut[p.PeekBitsNoFill(lutBits)]; e != 0 {
		p.SkipBitsNoFill(int(e >> 8))
		return int(e & 0xff), nil
	}
	for l := lutBits + 1; l <= maxCodeLength; l++ {
		code := int32(p.PeekBitsNoFill(l))
		if code <= h.maxcode[l] {
			p.SkipBitsNoFill(l)
			return int(h.symbols[h.valptr[l]+code-h.mincode[l]]), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid huffman code", ErrCorrupt)
}

// decodeDifference reads one lossless JPEG difference.
// With fixDNG16 the 16 bits that follow a category 16 code are skipped.
func (h *huffmanTable) decodeDifference(p *bitpump.MSB, fixDNG16 bool) (int32, error) {
	p.Fill(bitpump.MaxBits)
	cat, err := h.decodeCategory(p)
	if err != nil {
		return 0, err
	}
	switch cat {
	case 0:
		return 0, nil
	case maxDiffCategory:
		if fixDNG16 {
			p.SkipBitsNoFill(16)
		}
		return -32768, nil
	}
	// The code took at most 16 bits, so cat bits are still cached.
	v := int32(p.GetBitsNoFill(cat))
	if v < 1<<(cat-1) {
		v -= 1<<cat - 1
	}
	return v, nil
}

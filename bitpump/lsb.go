package bitpump

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/rawdec/bytestream"
)

// LSB reads bits least-significant first: bit 0 of the first byte is the
// first bit of the stream, so consecutive fields are consecutive bit ranges
// of the input read as one little-endian integer.
type LSB struct {
	data []byte
	pos  int

	// cache holds fill valid bits right-aligned; bits above them are zero.
	cache uint64
	fill  int
	pad   int
}

// NewLSB returns an LSB pump over the unread bytes of bs.
func NewLSB(bs bytestream.ByteStream) *LSB {
	return &LSB{data: bs.Bytes()}
}

// Fill makes sure at least n (at most MaxBits) bits are cached.
func (p *LSB) Fill(n int) {
	if p.fill >= n {
		return
	}
	if p.pos+8 <= len(p.data) {
		k := (64 - p.fill) >> 3
		w := binary.LittleEndian.Uint64(p.data[p.pos:])
		if k < 8 {
			w &= uint64(1)<<(8*k) - 1
		}
		p.cache |= w << p.fill
		p.fill += 8 * k
		p.pos += k
		return
	}
	for p.fill <= 56 {
		if p.pos < len(p.data) {
			p.cache |= uint64(p.data[p.pos]) << p.fill
			p.pos++
		} else {
			p.pad += 8
		}
		p.fill += 8
	}
}

// PeekBitsNoFill returns the next n bits without consuming them.
func (p *LSB) PeekBitsNoFill(n int) uint32 {
	return uint32(p.cache) & (uint32(1)<<n - 1)
}

// SkipBitsNoFill consumes n cached bits.
func (p *LSB) SkipBitsNoFill(n int) {
	p.cache >>= n
	p.fill -= n
}

// GetBitsNoFill returns and consumes the next n cached bits.
func (p *LSB) GetBitsNoFill(n int) uint32 {
	v := p.PeekBitsNoFill(n)
	p.SkipBitsNoFill(n)
	return v
}

// PeekBits returns the next n bits without consuming them.
func (p *LSB) PeekBits(n int) (uint32, error) {
	if err := checkWidth(n); err != nil {
		return 0, err
	}
	p.Fill(n)
	if p.pad > p.fill-n {
		return 0, fmt.Errorf("%w: %d bits requested, %d bits past end of input",
			bytestream.ErrOutOfBounds, n, p.pad-p.fill+n)
	}
	return p.PeekBitsNoFill(n), nil
}

// GetBits returns and consumes the next n bits.
func (p *LSB) GetBits(n int) (uint32, error) {
	v, err := p.PeekBits(n)
	if err != nil {
		return 0, err
	}
	p.SkipBitsNoFill(n)
	return v, nil
}

// SkipBits consumes n bits. n may exceed MaxBits.
func (p *LSB) SkipBits(n int) error {
	for n > 0 {
		k := min(n, MaxBits)
		if _, err := p.GetBits(k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// FillLevel returns the number of cached bits, including padding.
func (p *LSB) FillLevel() int { return p.fill }

// Err reports whether bits past the end of input have been consumed.
func (p *LSB) Err() error {
	if p.pad > p.fill {
		return fmt.Errorf("%w: %d bits past end of input", bytestream.ErrOutOfBounds, p.pad-p.fill)
	}
	return nil
}

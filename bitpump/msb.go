// Package bitpump implements bit-granularity readers over a ByteStream.
//
// A pump keeps up to 64 bits in a cache and refills it from the stream.
// Refills never fail: once the input is exhausted zero bits are cached and
// counted, and [bytestream.ErrOutOfBounds] is reported only when one of
// those bits is actually consumed. This lets entropy decoders peek past the
// end of a slice (as Huffman decoding does) without spurious errors.
//
// The checked methods (GetBits, PeekBits, SkipBits) return the error
// immediately. The NoFill methods are for hot loops: the caller calls Fill
// once for a group of reads and checks Err afterwards.
package bitpump

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/rawdec/bytestream"
)

// MaxBits is the widest field a single read may return.
const MaxBits = 32

// MSB reads bits most-significant first: bit 7 of the first byte is the
// first bit of the stream.
type MSB struct {
	data []byte
	pos  int

	// cache holds fill valid bits right-aligned; bits above them are stale.
	cache uint64
	fill  int

	// pad counts zero bits cached after the end of input.
	pad int

	// JPEG byte stuffing.
	jpeg    bool
	stopped bool
}

// NewMSB returns an MSB pump over the unread bytes of bs.
func NewMSB(bs bytestream.ByteStream) *MSB {
	return &MSB{data: bs.Bytes()}
}

// NewJPEG returns an MSB pump that undoes JPEG byte stuffing: FF 00 is
// read as a single FF byte, and FF followed by any other byte is a marker
// that ends the entropy-coded data.
func NewJPEG(bs bytestream.ByteStream) *MSB {
	return &MSB{data: bs.Bytes(), jpeg: true}
}

// Fill makes sure at least n (at most MaxBits) bits are cached.
func (p *MSB) Fill(n int) {
	if p.fill >= n {
		return
	}
	if p.jpeg {
		p.fillJPEG()
		return
	}
	if p.pos+8 <= len(p.data) {
		k := (64 - p.fill) >> 3
		w := binary.BigEndian.Uint64(p.data[p.pos:])
		p.cache = p.cache<<(8*k) | w>>(64-8*k)
		p.fill += 8 * k
		p.pos += k
		return
	}
	for p.fill <= 56 {
		var b byte
		if p.pos < len(p.data) {
			b = p.data[p.pos]
			p.pos++
		} else {
			p.pad += 8
		}
		p.cache = p.cache<<8 | uint64(b)
		p.fill += 8
	}
}

func (p *MSB) fillJPEG() {
	for p.fill <= 56 {
		var b byte
		switch {
		case p.stopped || p.pos >= len(p.data):
			p.pad += 8
		default:
			b = p.data[p.pos]
			p.pos++
			if b == 0xFF && p.pos < len(p.data) {
				if p.data[p.pos] == 0x00 {
					p.pos++
				} else {
					// marker
					p.pos--
					p.stopped = true
					b = 0
					p.pad += 8
				}
			}
		}
		p.cache = p.cache<<8 | uint64(b)
		p.fill += 8
	}
}

// PeekBitsNoFill returns the next n bits without consuming them.
// The caller must have called Fill(n) or more.
func (p *MSB) PeekBitsNoFill(n int) uint32 {
	return uint32(p.cache>>(p.fill-n)) & (uint32(1)<<n - 1)
}

// SkipBitsNoFill consumes n cached bits.
func (p *MSB) SkipBitsNoFill(n int) {
	p.fill -= n
}

// GetBitsNoFill returns and consumes the next n cached bits.
func (p *MSB) GetBitsNoFill(n int) uint32 {
	v := p.PeekBitsNoFill(n)
	p.fill -= n
	return v
}

// PeekBits returns the next n bits without consuming them.
func (p *MSB) PeekBits(n int) (uint32, error) {
	if err := checkWidth(n); err != nil {
		return 0, err
	}
	p.Fill(n)
	if p.pad > p.fill-n {
		return 0, p.overrun(n)
	}
	return p.PeekBitsNoFill(n), nil
}

// GetBits returns and consumes the next n bits.
func (p *MSB) GetBits(n int) (uint32, error) {
	v, err := p.PeekBits(n)
	if err != nil {
		return 0, err
	}
	p.fill -= n
	return v, nil
}

// SkipBits consumes n bits. n may exceed MaxBits.
func (p *MSB) SkipBits(n int) error {
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
func (p *MSB) FillLevel() int { return p.fill }

// Err reports whether bits past the end of input have been consumed.
func (p *MSB) Err() error {
	if p.pad > p.fill {
		return p.overrun(0)
	}
	return nil
}

func (p *MSB) overrun(n int) error {
	return fmt.Errorf("%w: %d bits requested, %d bits past end of input",
		bytestream.ErrOutOfBounds, n, p.pad-p.fill+n)
}

func checkWidth(n int) error {
	if n < 0 || n > MaxBits {
		return fmt.Errorf("bitpump: invalid bit count %d", n)
	}
	return nil
}

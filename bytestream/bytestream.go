// Package bytestream provides a bounds-checked cursor over a byte range.
//
// A ByteStream never owns its data: copies share the underlying storage and
// only the read position is private to each copy. Every read that would run
// past the declared end fails with an error wrapping [ErrOutOfBounds] instead
// of returning short or zero-filled data.
package bytestream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a read, skip or sub-range exceeds the
// length of a stream.
var ErrOutOfBounds = errors.New("bytestream: out of bounds")

// ByteStream is a read cursor over an immutable byte range.
//
// The zero value is an empty big-endian stream.
type ByteStream struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// New returns a stream over data using the given byte order for integer
// reads. A nil order means big-endian.
func New(data []byte, order binary.ByteOrder) ByteStream {
	if order == nil {
		order = binary.BigEndian
	}
	return ByteStream{data: data, order: order}
}

// Len returns the declared length of the stream.
func (bs ByteStream) Len() int { return len(bs.data) }

// Pos returns the cursor position relative to the start of the stream.
func (bs ByteStream) Pos() int { return bs.pos }

// Remaining returns the number of unread bytes.
func (bs ByteStream) Remaining() int { return len(bs.data) - bs.pos }

// Bytes returns the unread bytes. The result aliases the stream storage and
// must not be modified.
func (bs ByteStream) Bytes() []byte { return bs.data[bs.pos:len(bs.data):len(bs.data)] }

// Order returns the byte order used for integer reads.
func (bs ByteStream) Order() binary.ByteOrder {
	if bs.order == nil {
		return binary.BigEndian
	}
	return bs.order
}

// WithOrder returns a copy of bs that reads integers in the given order.
func (bs ByteStream) WithOrder(order binary.ByteOrder) ByteStream {
	bs.order = order
	return bs
}

func (bs ByteStream) check(n int) error {
	if n < 0 || n > len(bs.data)-bs.pos {
		return fmt.Errorf("%w: %d bytes at offset %d, stream length %d",
			ErrOutOfBounds, n, bs.pos, len(bs.data))
	}
	return nil
}

// Check reports whether n more bytes can be read.
func (bs ByteStream) Check(n int) error { return bs.check(n) }

// Peek returns the next n bytes without advancing.
func (bs ByteStream) Peek(n int) ([]byte, error) {
	if err := bs.check(n); err != nil {
		return nil, err
	}
	return bs.data[bs.pos : bs.pos+n : bs.pos+n], nil
}

// Read returns the next n bytes and advances past them.
func (bs *ByteStream) Read(n int) ([]byte, error) {
	b, err := bs.Peek(n)
	if err != nil {
		return nil, err
	}
	bs.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (bs *ByteStream) Skip(n int) error {
	if err := bs.check(n); err != nil {
		return err
	}
	bs.pos += n
	return nil
}

// PeekU8 returns the next byte without advancing.
func (bs ByteStream) PeekU8() (uint8, error) {
	if err := bs.check(1); err != nil {
		return 0, err
	}
	return bs.data[bs.pos], nil
}

// ReadU8 reads one byte.
func (bs *ByteStream) ReadU8() (uint8, error) {
	v, err := bs.PeekU8()
	if err != nil {
		return 0, err
	}
	bs.pos++
	return v, nil
}

// PeekU16 returns the next 16-bit integer without advancing.
func (bs ByteStream) PeekU16() (uint16, error) {
	if err := bs.check(2); err != nil {
		return 0, err
	}
	return bs.Order().Uint16(bs.data[bs.pos:]), nil
}

// ReadU16 reads a 16-bit integer.
func (bs *ByteStream) ReadU16() (uint16, error) {
	v, err := bs.PeekU16()
	if err != nil {
		return 0, err
	}
	bs.pos += 2
	return v, nil
}

// PeekU32 returns the next 32-bit integer without advancing.
func (bs ByteStream) PeekU32() (uint32, error) {
	if err := bs.check(4); err != nil {
		return 0, err
	}
	return bs.Order().Uint32(bs.data[bs.pos:]), nil
}

// ReadU32 reads a 32-bit integer.
func (bs *ByteStream) ReadU32() (uint32, error) {
	v, err := bs.PeekU32()
	if err != nil {
		return 0, err
	}
	bs.pos += 4
	return v, nil
}

// SubStream returns an independent stream over length bytes starting at
// offset, measured from the start of bs (not from the cursor).
func (bs ByteStream) SubStream(offset, length int) (ByteStream, error) {
	if offset < 0 || length < 0 || offset > len(bs.data) || length > len(bs.data)-offset {
		return ByteStream{}, fmt.Errorf("%w: sub-range [%d, %d+%d) of stream length %d",
			ErrOutOfBounds, offset, offset, length, len(bs.data))
	}
	end := offset + length
	return ByteStream{data: bs.data[offset:end:end], order: bs.order}, nil
}

// Stream returns the next length bytes as an independent stream and
// advances past them.
func (bs *ByteStream) Stream(length int) (ByteStream, error) {
	sub, err := bs.SubStream(bs.pos, length)
	if err != nil {
		return ByteStream{}, err
	}
	bs.pos += length
	return sub, nil
}

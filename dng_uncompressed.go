package rawdec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/gogpu/rawdec/bitpump"
	"github.com/gogpu/rawdec/bytestream"
)

// rowBytes returns the stored size of one slice row. Rows start on a byte
// boundary.
func (d *DNGDecompressor) rowBytes(s *DNGSlice) int {
	return (s.TileWidth*d.img.cpp*d.params.BitsPerSample + 7) / 8
}

// predictorStride returns the distance, in samples, to the sample a
// horizontal predictor adds to.
func (d *DNGDecompressor) predictorStride() int {
	switch d.params.Predictor {
	case PredictorHorizontal:
		return d.img.cpp
	case PredictorHorizontalX2:
		return 2 * d.img.cpp
	case PredictorHorizontalX4:
		return 4 * d.img.cpp
	default:
		return 0
	}
}

func decodeUncompressed(d *DNGDecompressor, s *DNGSlice, w window) error {
	return d.unpackRows(s.Stream, s, w)
}

func decodeDeflate(d *DNGDecompressor, s *DNGSlice, w window) error {
	want := d.rowBytes(s) * s.Height
	zr, err := zlib.NewReader(bytes.NewReader(s.Stream.Bytes()))
	if err != nil {
		return fmt.Errorf("%w: deflate: %v", ErrCorrupt, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	buf := make([]byte, want)
	n, err := io.ReadFull(zr, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: deflate: inflated %d bytes, want %d", ErrOutOfBounds, n, want)
	case err != nil:
		return fmt.Errorf("%w: deflate: %v", ErrCorrupt, err)
	}
	return d.unpackRows(bytestream.New(buf, s.Stream.Order()), s, w)
}

// unpackRows reads s.Height stored rows of packed samples from bs,
// undoes the horizontal predictor and writes the visible part of each row.
func (d *DNGDecompressor) unpackRows(bs bytestream.ByteStream, s *DNGSlice, w window) error {
	bps := d.params.BitsPerSample
	order := d.params.ByteOrder
	if order == nil {
		order = bs.Order()
	}
	n := s.TileWidth * d.img.cpp
	stride := d.predictorStride()
	mask := uint16(1<<bps - 1)
	rb := d.rowBytes(s)

	row := make([]uint16, n)
	for y := range s.Height {
		src, err := bs.Stream(rb)
		if err != nil {
			return fmt.Errorf("row %d: %w", y, err)
		}
		switch bps {
		case 8:
			for i, b := range src.Bytes() {
				row[i] = uint16(b)
			}
		case 16:
			raw := src.Bytes()
			for i := range row {
				row[i] = order.Uint16(raw[2*i:])
			}
		default:
			p := bitpump.NewMSB(src)
			for i := range row {
				v, err := p.GetBits(bps)
				if err != nil {
					return fmt.Errorf("row %d: %w", y, err)
				}
				row[i] = uint16(v)
			}
		}

		if stride > 0 {
			for i := stride; i < n; i++ {
				row[i] = (row[i] + row[i-stride]) & mask
			}
		}
		copy(w.row(y), row)
	}
	return nil
}

package rawdec

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/rawdec/bitpump"
	"github.com/gogpu/rawdec/bytestream"
)

// JPEG markers, the second byte after FF.
const (
	markerSOF0  = 0xC0
	markerSOF3  = 0xC3
	markerDHT   = 0xC4
	markerJPG   = 0xC8
	markerDAC   = 0xCC
	markerSOF15 = 0xCF
	markerRST0  = 0xD0
	markerRST7  = 0xD7
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerDRI   = 0xDD
	markerTEM   = 0x01
)

const maxLJPEGComponents = 4

// ljpegComponent is one frame component and its scan table.
type ljpegComponent struct {
	id    uint8
	table *huffmanTable
}

// ljpegFrame is the parsed header of a lossless JPEG stream, up to the
// start of the entropy-coded data.
type ljpegFrame struct {
	precision  int
	width      int
	height     int
	components []ljpegComponent
	tables     [4]*huffmanTable
	cache      *tableCache
}

// parseLJPEG reads the markers of a lossless JPEG stream and returns the
// frame and a stream positioned at the entropy-coded data. Huffman tables
// come from tables when it is not nil.
func parseLJPEG(bs bytestream.ByteStream, tables *tableCache) (*ljpegFrame, bytestream.ByteStream, error) {
	bs = bs.WithOrder(binary.BigEndian)
	if m, err := bs.ReadU16(); err != nil {
		return nil, bs, err
	} else if m != 0xFF00|markerSOI {
		return nil, bs, fmt.Errorf("%w: ljpeg: missing SOI, got %#04x", ErrCorrupt, m)
	}

	f := &ljpegFrame{cache: tables}
	seenFrame := false
	for {
		m, err := nextMarker(&bs)
		if err != nil {
			return nil, bs, err
		}
		switch {
		case m == markerSOF3:
			if seenFrame {
				return nil, bs, fmt.Errorf("%w: ljpeg: second SOF", ErrCorrupt)
			}
			if err := f.parseSOF(&bs); err != nil {
				return nil, bs, err
			}
			seenFrame = true
		case m >= markerSOF0 && m <= markerSOF15 && m != markerDHT && m != markerJPG && m != markerDAC:
			return nil, bs, fmt.Errorf("%w: ljpeg: frame type SOF%d", ErrUnsupported, m-markerSOF0)
		case m == markerDHT:
			if err := f.parseDHT(&bs); err != nil {
				return nil, bs, err
			}
		case m == markerDRI:
			if err := parseDRI(&bs); err != nil {
				return nil, bs, err
			}
		case m == markerSOS:
			if !seenFrame {
				return nil, bs, fmt.Errorf("%w: ljpeg: SOS before SOF", ErrCorrupt)
			}
			if err := f.parseSOS(&bs); err != nil {
				return nil, bs, err
			}
			return f, bs, nil
		case m == markerEOI:
			return nil, bs, fmt.Errorf("%w: ljpeg: EOI before SOS", ErrCorrupt)
		case m == markerSOI || m == markerTEM || (m >= markerRST0 && m <= markerRST7):
			return nil, bs, fmt.Errorf("%w: ljpeg: unexpected marker %#02x", ErrCorrupt, m)
		default:
			// APPn, COM, DQT and the like.
			if err := skipSegment(&bs); err != nil {
				return nil, bs, err
			}
		}
	}
}

// nextMarker reads FF, any fill bytes, and the marker code.
func nextMarker(bs *bytestream.ByteStream) (uint8, error) {
	b, err := bs.ReadU8()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("%w: ljpeg: expected marker at offset %d, got %#02x", ErrCorrupt, bs.Pos()-1, b)
	}
	for {
		m, err := bs.ReadU8()
		if err != nil {
			return 0, err
		}
		if m != 0xFF {
			return m, nil
		}
	}
}

// segment returns the payload of a length-prefixed marker segment.
func segment(bs *bytestream.ByteStream) (bytestream.ByteStream, error) {
	n, err := bs.ReadU16()
	if err != nil {
		return bytestream.ByteStream{}, err
	}
	if n < 2 {
		return bytestream.ByteStream{}, fmt.Errorf("%w: ljpeg: segment length %d", ErrCorrupt, n)
	}
	return bs.Stream(int(n) - 2)
}

func skipSegment(bs *bytestream.ByteStream) error {
	_, err := segment(bs)
	return err
}

func (f *ljpegFrame) parseSOF(bs *bytestream.ByteStream) error {
	s, err := segment(bs)
	if err != nil {
		return err
	}
	hdr, err := s.Read(6)
	if err != nil {
		return err
	}
	f.precision = int(hdr[0])
	f.height = int(hdr[1])<<8 | int(hdr[2])
	f.width = int(hdr[3])<<8 | int(hdr[4])
	nf := int(hdr[5])

	switch {
	case f.precision < 2 || f.precision > 16:
		return fmt.Errorf("%w: ljpeg: precision %d", ErrUnsupported, f.precision)
	case f.width == 0 || f.height == 0:
		return fmt.Errorf("%w: ljpeg: frame %dx%d", ErrUnsupported, f.width, f.height)
	case nf < 1 || nf > maxLJPEGComponents:
		return fmt.Errorf("%w: ljpeg: %d components", ErrUnsupported, nf)
	}

	f.components = make([]ljpegComponent, nf)
	for i := range f.components {
		c, err := s.Read(3)
		if err != nil {
			return err
		}
		if c[1] != 0x11 {
			return fmt.Errorf("%w: ljpeg: sampling factors %#02x", ErrUnsupported, c[1])
		}
		f.components[i].id = c[0]
	}
	return nil
}

func (f *ljpegFrame) parseDHT(bs *bytestream.ByteStream) error {
	s, err := segment(bs)
	if err != nil {
		return err
	}
	for s.Remaining() > 0 {
		tcth, err := s.ReadU8()
		if err != nil {
			return err
		}
		class, id := tcth>>4, tcth&0x0F
		if class != 0 {
			return fmt.Errorf("%w: ljpeg: huffman table class %d", ErrUnsupported, class)
		}
		if int(id) >= len(f.tables) {
			return fmt.Errorf("%w: ljpeg: huffman table id %d", ErrCorrupt, id)
		}

		raw, err := s.Read(maxCodeLength)
		if err != nil {
			return err
		}
		var counts [maxCodeLength]uint8
		total := 0
		for i, c := range raw {
			counts[i] = c
			total += int(c)
		}
		symbols, err := s.Read(total)
		if err != nil {
			return err
		}
		t, err := lookupHuffmanTable(f.cache, counts, symbols)
		if err != nil {
			return err
		}
		f.tables[id] = t
	}
	return nil
}

func parseDRI(bs *bytestream.ByteStream) error {
	s, err := segment(bs)
	if err != nil {
		return err
	}
	ri, err := s.ReadU16()
	if err != nil {
		return err
	}
	if ri != 0 {
		return fmt.Errorf("%w: ljpeg: restart interval %d", ErrUnsupported, ri)
	}
	return nil
}

func (f *ljpegFrame) parseSOS(bs *bytestream.ByteStream) error {
	s, err := segment(bs)
	if err != nil {
		return err
	}
	ns, err := s.ReadU8()
	if err != nil {
		return err
	}
	if int(ns) != len(f.components) {
		return fmt.Errorf("%w: ljpeg: scan has %d of %d components", ErrUnsupported, ns, len(f.components))
	}
	for i := range f.components {
		c, err := s.Read(2)
		if err != nil {
			return err
		}
		if c[0] != f.components[i].id {
			return fmt.Errorf("%w: ljpeg: scan component %d out of frame order", ErrCorrupt, c[0])
		}
		td := c[1] >> 4
		if int(td) >= len(f.tables) || f.tables[td] == nil {
			return fmt.Errorf("%w: ljpeg: component %d uses undefined table %d", ErrCorrupt, c[0], td)
		}
		f.components[i].table = f.tables[td]
	}
	tail, err := s.Read(3)
	if err != nil {
		return err
	}
	predictor, pt := tail[0], tail[2]&0x0F
	if predictor != 1 {
		return fmt.Errorf("%w: ljpeg: predictor %d", ErrUnsupported, predictor)
	}
	if pt != 0 {
		return fmt.Errorf("%w: ljpeg: point transform %d", ErrUnsupported, pt)
	}
	return nil
}

// decodeLJPEG decodes a lossless JPEG slice. Frame rows hold
// width*components interleaved samples; each sample is predicted from the
// previous sample of the same component, and the first sample of every
// component from the row above (or half range in the first row).
func decodeLJPEG(d *DNGDecompressor, s *DNGSlice, w window) error {
	f, data, err := parseLJPEG(s.Stream, d.tables)
	if err != nil {
		return err
	}
	nf := len(f.components)
	fw := f.width * nf
	if fw < w.width || f.height < s.Height {
		return fmt.Errorf("%w: ljpeg: frame %dx%d (%d components) smaller than slice %dx%d",
			ErrCorrupt, f.width, f.height, nf, s.Width, s.Height)
	}
	if f.precision > d.params.BitsPerSample {
		return fmt.Errorf("%w: ljpeg: %d-bit frame in %d-bit data", ErrCorrupt, f.precision, d.params.BitsPerSample)
	}

	var tables [maxLJPEGComponents]*huffmanTable
	var pred [maxLJPEGComponents]uint16
	for c := range nf {
		tables[c] = f.components[c].table
		pred[c] = 1 << (f.precision - 1)
	}
	fix := d.params.FixLJPEG

	p := bitpump.NewJPEG(data)
	row := make([]uint16, fw)
	for y := range s.Height {
		for x := 0; x < fw; x += nf {
			for c := range nf {
				diff, err := tables[c].decodeDifference(p, fix)
				if err != nil {
					return fmt.Errorf("row %d: %w", y, err)
				}
				pred[c] += uint16(diff)
				row[x+c] = pred[c]
			}
		}
		if err := p.Err(); err != nil {
			return fmt.Errorf("row %d: %w", y, err)
		}
		copy(pred[:nf], row[:nf])
		copy(w.row(y), row)
	}
	return nil
}

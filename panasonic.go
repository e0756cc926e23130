package rawdec

import (
	"context"
	"fmt"
	"image"
	"slices"

	"github.com/gogpu/rawdec/bytestream"
)

// Panasonic V5 block layout.
const (
	// BlockSize is the number of input bytes per block.
	BlockSize = 0x4000

	// PacketsPerBlock is the number of packets in one block.
	PacketsPerBlock = BlockSize / bytesPerPacket

	// sectionSplitOffset is where the second section of a block starts
	// physically. Logically it comes first.
	sectionSplitOffset = 0x1FF8
)

// PanasonicBlock is one block of a Panasonic V5 raw image and the raster
// range it decodes to. End is exclusive in raster order; the last block
// ends at (width, height-1).
type PanasonicBlock struct {
	Begin, End image.Point
	Stream     bytestream.ByteStream
}

// PanasonicV5Decompressor decodes Panasonic RW2 V5 raw data in parallel,
// one block per work item.
type PanasonicV5Decompressor struct {
	img    *Image
	format packetFormat
	blocks []PanasonicBlock
	exec   Executor
}

// NewPanasonicV5 chops bs into blocks covering img.
//
// bps must be 12 or 14, otherwise ErrUnsupported is returned before the
// input is looked at. Input too short for the image fails with
// ErrOutOfBounds naming the first missing block.
func NewPanasonicV5(img *Image, bs bytestream.ByteStream, bps int, opts ...Option) (*PanasonicV5Decompressor, error) {
	format, ok := packetFormats[bps]
	if !ok {
		return nil, fmt.Errorf("%w: panasonic v5 with %d bits per sample", ErrUnsupported, bps)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}
	if img.cpp != 1 {
		return nil, fmt.Errorf("%w: panasonic v5 into a %d-sample image", ErrUnsupported, img.cpp)
	}
	if bps > img.bps {
		return nil, fmt.Errorf("%w: %d bits per sample into a %d-bit image", ErrUnsupported, bps, img.bps)
	}

	blocks, err := chopPanasonicV5(img.width, img.height, format.pixelsPerPacket, bs)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	d := &PanasonicV5Decompressor{
		img:    img,
		format: format,
		blocks: blocks,
		exec:   o.resolveExecutor(),
	}

	Logger().Debug("rawdec: panasonic v5 decompressor",
		"width", img.width, "height", img.height, "bps", bps, "blocks", len(blocks))
	return d, nil
}

// chopPanasonicV5 splits bs into the blocks needed for a width x height
// image with ppp pixels per packet.
func chopPanasonicV5(width, height, ppp int, bs bytestream.ByteStream) ([]PanasonicBlock, error) {
	area := width * height
	numPackets := (area + ppp - 1) / ppp
	numBlocks := (numPackets + PacketsPerBlock - 1) / PacketsPerBlock
	pixelsPerBlock := ppp * PacketsPerBlock

	blocks := make([]PanasonicBlock, 0, numBlocks)
	for i := range numBlocks {
		s, err := bs.Stream(BlockSize)
		if err != nil {
			return nil, fmt.Errorf("panasonic v5: block %d of %d: %w", i, numBlocks, err)
		}
		begin := i * pixelsPerBlock
		end := min(begin+pixelsPerBlock, area)

		b := PanasonicBlock{
			Begin:  image.Pt(begin%width, begin/width),
			End:    image.Pt(end%width, end/width),
			Stream: s,
		}
		if i == numBlocks-1 {
			b.End = image.Pt(width, height-1)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Blocks returns the blocks in input order.
func (d *PanasonicV5Decompressor) Blocks() []PanasonicBlock {
	return slices.Clone(d.blocks)
}

// Decompress decodes every block into the image.
//
// The first failing block is returned as an *ItemError and stops the
// remaining blocks from starting. On failure the image contents are
// unspecified.
func (d *PanasonicV5Decompressor) Decompress(ctx context.Context) error {
	return runItems(ctx, d.exec, "block", len(d.blocks), func(i int) error {
		return d.decodeBlock(&d.blocks[i])
	})
}

func (d *PanasonicV5Decompressor) decodeBlock(b *PanasonicBlock) error {
	w := d.img.width
	begin := b.Begin.Y*w + b.Begin.X
	end := b.End.Y*w + b.End.X
	out := d.img.span(begin, end)

	v, err := newSwappedBlock(b.Stream)
	if err != nil {
		return err
	}

	ppp := d.format.pixelsPerPacket
	unpack := d.format.unpack
	var pkt [bytesPerPacket]byte
	var px [maxPixelsPerPacket]uint16
	for k, i := 0, 0; i < len(out.pix); k++ {
		v.packet(k, &pkt)
		unpack(&pkt, &px)
		i += copy(out.pix[i:], px[:ppp])
	}
	return nil
}

// swappedBlock presents a block with its two sections swapped back:
// logical byte p is physical byte (p + sectionSplitOffset) mod BlockSize.
type swappedBlock struct {
	data []byte
}

func newSwappedBlock(bs bytestream.ByteStream) (swappedBlock, error) {
	data, err := bs.Peek(BlockSize)
	if err != nil {
		return swappedBlock{}, err
	}
	return swappedBlock{data: data}, nil
}

// at returns logical byte p.
func (s swappedBlock) at(p int) byte {
	return s.data[(p+sectionSplitOffset)%BlockSize]
}

// packet copies logical packet k into dst. The packet that straddles the
// end of the physical block is copied in two pieces.
func (s swappedBlock) packet(k int, dst *[bytesPerPacket]byte) {
	q := (k*bytesPerPacket + sectionSplitOffset) % BlockSize
	n := copy(dst[:], s.data[q:min(q+bytesPerPacket, BlockSize)])
	copy(dst[n:], s.data)
}

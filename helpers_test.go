package rawdec

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gogpu/rawdec/bytestream"
)

// bitWriter packs fields MSB-first.
type bitWriter struct {
	buf  []byte
	acc  uint64
	bits int
}

func (w *bitWriter) put(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | uint64(v>>i&1)
		w.bits++
		if w.bits == 8 {
			w.buf = append(w.buf, byte(w.acc))
			w.acc, w.bits = 0, 0
		}
	}
}

// flush pads the last byte with the given bit and returns the bytes.
func (w *bitWriter) flush(padBit uint32) []byte {
	for w.bits != 0 {
		w.put(padBit, 1)
	}
	return w.buf
}

// countingExecutor runs items sequentially and records its calls.
type countingExecutor struct {
	calls int
	items int
}

func (e *countingExecutor) ExecuteAll(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	e.calls++
	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.items++
		if err := task(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// packPanasonicPacket packs pixels into a packet, LSB-first.
func packPanasonicPacket(px []uint16, bps int) [bytesPerPacket]byte {
	var lo, hi uint64
	for i, v := range px {
		bit := i * bps
		x := uint64(v) & (1<<bps - 1)
		if bit < 64 {
			lo |= x << bit
			if bit+bps > 64 {
				hi |= x >> (64 - bit)
			}
		} else {
			hi |= x << (bit - 64)
		}
	}
	var p [bytesPerPacket]byte
	binary.LittleEndian.PutUint64(p[0:8], lo)
	binary.LittleEndian.PutUint64(p[8:16], hi)
	return p
}

// encodePanasonicV5 lays raster-order pixels out as V5 blocks, with the
// block sections swapped the way the camera stores them.
func encodePanasonicV5(pixels []uint16, bps int) []byte {
	ppp := packetFormats[bps].pixelsPerPacket
	numPackets := (len(pixels) + ppp - 1) / ppp
	numBlocks := (numPackets + PacketsPerBlock - 1) / PacketsPerBlock

	out := make([]byte, numBlocks*BlockSize)
	logical := make([]byte, BlockSize)
	for b := range numBlocks {
		clear(logical)
		for k := range PacketsPerBlock {
			first := (b*PacketsPerBlock + k) * ppp
			if first >= len(pixels) {
				break
			}
			pkt := packPanasonicPacket(pixels[first:min(first+ppp, len(pixels))], bps)
			copy(logical[k*bytesPerPacket:], pkt[:])
		}
		block := out[b*BlockSize : (b+1)*BlockSize]
		for p, v := range logical {
			block[(p+sectionSplitOffset)%BlockSize] = v
		}
	}
	return out
}

func panasonicInput(t *testing.T, pixels []uint16, bps int) bytestream.ByteStream {
	t.Helper()
	return bytestream.New(encodePanasonicV5(pixels, bps), nil)
}

package rawdec

import "encoding/binary"

const (
	bytesPerPacket     = 16
	maxPixelsPerPacket = 10
)

// unpackFunc decodes the pixels of one packet. A packet is a 128-bit
// little-endian integer whose consecutive bps-bit fields, starting at bit
// 0, are the pixels; leftover high bits are padding.
type unpackFunc func(src *[bytesPerPacket]byte, dst *[maxPixelsPerPacket]uint16)

// packetFormat describes the packets of one bit depth.
type packetFormat struct {
	bps             int
	pixelsPerPacket int
	unpack          unpackFunc
}

var packetFormats = map[int]packetFormat{
	12: {bps: 12, pixelsPerPacket: 10, unpack: unpack12},
	14: {bps: 14, pixelsPerPacket: 9, unpack: unpack14},
}

func unpack12(src *[bytesPerPacket]byte, dst *[maxPixelsPerPacket]uint16) {
	lo := binary.LittleEndian.Uint64(src[0:8])
	hi := binary.LittleEndian.Uint64(src[8:16])
	const m = 0xFFF
	dst[0] = uint16(lo & m)
	dst[1] = uint16(lo >> 12 & m)
	dst[2] = uint16(lo >> 24 & m)
	dst[3] = uint16(lo >> 36 & m)
	dst[4] = uint16(lo >> 48 & m)
	dst[5] = uint16((lo>>60 | hi<<4) & m)
	dst[6] = uint16(hi >> 8 & m)
	dst[7] = uint16(hi >> 20 & m)
	dst[8] = uint16(hi >> 32 & m)
	dst[9] = uint16(hi >> 44 & m)
}

func unpack14(src *[bytesPerPacket]byte, dst *[maxPixelsPerPacket]uint16) {
	lo := binary.LittleEndian.Uint64(src[0:8])
	hi := binary.LittleEndian.Uint64(src[8:16])
	const m = 0x3FFF
	dst[0] = uint16(lo & m)
	dst[1] = uint16(lo >> 14 & m)
	dst[2] = uint16(lo >> 28 & m)
	dst[3] = uint16(lo >> 42 & m)
	dst[4] = uint16((lo>>56 | hi<<8) & m)
	dst[5] = uint16(hi >> 6 & m)
	dst[6] = uint16(hi >> 20 & m)
	dst[7] = uint16(hi >> 34 & m)
	dst[8] = uint16(hi >> 48 & m)
}

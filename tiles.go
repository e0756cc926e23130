package rawdec

import (
	"fmt"

	"github.com/gogpu/rawdec/bytestream"
)

// TileSlices lays a tile table over img and returns one DNGSlice per tile.
//
// Tiles are tileWidth x tileHeight pixels in row-major order; offsets and
// counts give each tile's byte range in stream, as in the TileOffsets and
// TileByteCounts tags. Strips are tiles as wide as the image. Tiles on the
// right and bottom edges are clipped to the image but keep their stored
// row width.
func TileSlices(img *Image, stream bytestream.ByteStream, tileWidth, tileHeight int, offsets, counts []int) ([]DNGSlice, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d", ErrInvalidSlice, tileWidth, tileHeight)
	}
	tilesX := (img.width + tileWidth - 1) / tileWidth
	tilesY := (img.height + tileHeight - 1) / tileHeight
	if len(offsets) != tilesX*tilesY || len(counts) != len(offsets) {
		return nil, fmt.Errorf("%w: %d offsets and %d counts for %dx%d tiles",
			ErrInvalidSlice, len(offsets), len(counts), tilesX, tilesY)
	}

	out := make([]DNGSlice, 0, len(offsets))
	for ty := range tilesY {
		for tx := range tilesX {
			i := ty*tilesX + tx

			// Edge tiles may be smaller
			w := min(tileWidth, img.width-tx*tileWidth)
			h := min(tileHeight, img.height-ty*tileHeight)

			bs, err := stream.SubStream(offsets[i], counts[i])
			if err != nil {
				return nil, fmt.Errorf("tile %d: %w", i, err)
			}
			out = append(out, DNGSlice{
				OffsetX:   tx * tileWidth,
				OffsetY:   ty * tileHeight,
				Width:     w,
				Height:    h,
				TileWidth: tileWidth,
				Stream:    bs,
			})
		}
	}
	return out, nil
}

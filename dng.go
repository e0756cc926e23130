package rawdec

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"slices"

	"github.com/gogpu/rawdec/bytestream"
)

// Compression is the value of a DNG Compression tag.
type Compression uint16

// Supported DNG compressions.
const (
	CompressionNone    Compression = 1
	CompressionLJPEG   Compression = 7
	CompressionDeflate Compression = 8
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLJPEG:
		return "ljpeg"
	case CompressionDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("Compression(%d)", uint16(c))
	}
}

// Predictor is the value of a DNG Predictor tag.
type Predictor uint16

// Supported DNG predictors.
const (
	PredictorNone         Predictor = 1
	PredictorHorizontal   Predictor = 2
	PredictorHorizontalX2 Predictor = 34892
	PredictorHorizontalX4 Predictor = 34893
)

// DNGSlice is one independently compressed tile or strip.
type DNGSlice struct {
	// OffsetX and OffsetY locate the slice in the image, in pixels.
	OffsetX, OffsetY int

	// Width and Height are the number of pixels written to the image.
	Width, Height int

	// TileWidth is the stored width of a row, in pixels. Edge tiles
	// are stored at full tile width and cropped to Width. Zero means Width.
	TileWidth int

	// Stream holds the compressed bytes of the slice.
	Stream bytestream.ByteStream
}

func (s *DNGSlice) bounds() image.Rectangle {
	return image.Rect(s.OffsetX, s.OffsetY, s.OffsetX+s.Width, s.OffsetY+s.Height)
}

// DNGParams describes the slices of a DNG raw image and how they are coded.
type DNGParams struct {
	Compression Compression

	// Predictor is ignored for lossless JPEG beyond being PredictorNone.
	// Zero is read as PredictorNone.
	Predictor Predictor

	BitsPerSample int

	// ByteOrder of 16-bit uncompressed samples. Nil means the order of
	// each slice's stream.
	ByteOrder binary.ByteOrder

	// FixLJPEG skips the 16 bits some DNG writers emit after a lossless
	// JPEG difference of category 16.
	FixLJPEG bool

	Slices []DNGSlice
}

// sliceFunc decodes one slice into its window.
type sliceFunc func(d *DNGDecompressor, s *DNGSlice, w window) error

type dngKey struct {
	compression Compression
	predictor   Predictor
}

// dngRoutine is a registered decode routine with its bit depth range.
type dngRoutine struct {
	decode  sliceFunc
	minBits int
}

var dngRoutines = map[dngKey]dngRoutine{
	{CompressionNone, PredictorNone}:            {decodeUncompressed, 1},
	{CompressionNone, PredictorHorizontal}:      {decodeUncompressed, 1},
	{CompressionNone, PredictorHorizontalX2}:    {decodeUncompressed, 1},
	{CompressionNone, PredictorHorizontalX4}:    {decodeUncompressed, 1},
	{CompressionDeflate, PredictorNone}:         {decodeDeflate, 1},
	{CompressionDeflate, PredictorHorizontal}:   {decodeDeflate, 1},
	{CompressionDeflate, PredictorHorizontalX2}: {decodeDeflate, 1},
	{CompressionDeflate, PredictorHorizontalX4}: {decodeDeflate, 1},
	{CompressionLJPEG, PredictorNone}:           {decodeLJPEG, 2},
}

// DNGDecompressor decodes the slices of a DNG raw image in parallel.
type DNGDecompressor struct {
	img    *Image
	params DNGParams
	slices []DNGSlice
	decode sliceFunc
	exec   Executor
	tables *tableCache
}

// NewDNG validates p against img and prepares a decompressor.
//
// Unsupported compression, predictor or bit depth combinations fail with
// ErrUnsupported; slices that are empty, leave the image, overlap or leave
// pixels uncovered fail with ErrInvalidSlice. Nothing is decoded until Decompress.
func NewDNG(img *Image, p DNGParams, opts ...Option) (*DNGDecompressor, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}
	if p.Predictor == 0 {
		p.Predictor = PredictorNone
	}

	r, ok := dngRoutines[dngKey{p.Compression, p.Predictor}]
	if !ok {
		return nil, fmt.Errorf("%w: dng compression %v with predictor %d", ErrUnsupported, p.Compression, p.Predictor)
	}
	if p.BitsPerSample < r.minBits || p.BitsPerSample > 16 {
		return nil, fmt.Errorf("%w: dng %v with %d bits per sample", ErrUnsupported, p.Compression, p.BitsPerSample)
	}
	if p.BitsPerSample > img.bps {
		return nil, fmt.Errorf("%w: %d bits per sample into a %d-bit image", ErrUnsupported, p.BitsPerSample, img.bps)
	}

	sl, err := validateSlices(img, p.Slices)
	if err != nil {
		return nil, err
	}
	p.Slices = nil

	o := buildOptions(opts)
	d := &DNGDecompressor{
		img:    img,
		params: p,
		slices: sl,
		decode: r.decode,
		exec:   o.resolveExecutor(),
	}
	if p.Compression == CompressionLJPEG {
		d.tables = newTableCache()
	}

	Logger().Debug("rawdec: dng decompressor",
		"width", img.width, "height", img.height, "cpp", img.cpp,
		"compression", p.Compression, "predictor", p.Predictor,
		"bps", p.BitsPerSample, "slices", len(sl))
	return d, nil
}

// Slices returns the validated slices, in dispatch order.
func (d *DNGDecompressor) Slices() []DNGSlice {
	return slices.Clone(d.slices)
}

// Decompress decodes every slice into the image.
//
// The first failing slice is returned as an *ItemError and stops the
// remaining slices from starting. On failure the image contents are
// unspecified.
func (d *DNGDecompressor) Decompress(ctx context.Context) error {
	err := runItems(ctx, d.exec, "slice", len(d.slices), func(i int) error {
		s := &d.slices[i]
		w := d.img.window(s.OffsetX, s.OffsetY, s.Width, s.Height)
		return d.decode(d, s, w)
	})
	if d.tables != nil {
		Logger().Debug("rawdec: dng huffman tables", "distinct", d.tables.Len(), "slices", len(d.slices))
	}
	return err
}

// validateSlices checks that the slices tile the image exactly and returns
// a private copy.
func validateSlices(img *Image, in []DNGSlice) ([]DNGSlice, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no slices", ErrInvalidSlice)
	}
	out := slices.Clone(in)
	bounds := img.Bounds()
	for i := range out {
		s := &out[i]
		if s.TileWidth == 0 {
			s.TileWidth = s.Width
		}
		r := s.bounds()
		switch {
		case s.Width <= 0 || s.Height <= 0:
			return nil, fmt.Errorf("%w: slice %d is empty (%dx%d)", ErrInvalidSlice, i, s.Width, s.Height)
		case !r.In(bounds):
			return nil, fmt.Errorf("%w: slice %d at %v outside image %v", ErrInvalidSlice, i, r, bounds)
		case s.TileWidth < s.Width:
			return nil, fmt.Errorf("%w: slice %d tile width %d < width %d", ErrInvalidSlice, i, s.TileWidth, s.Width)
		}
	}
	if a, b, ok := findOverlap(out); ok {
		return nil, fmt.Errorf("%w: slices %d and %d overlap", ErrInvalidSlice, a, b)
	}
	// Disjoint slices inside the image cover it exactly when the areas match.
	area := 0
	for i := range out {
		area += out[i].Width * out[i].Height
	}
	if want := img.width * img.height; area != want {
		return nil, fmt.Errorf("%w: slices cover %d of %d pixels", ErrInvalidSlice, area, want)
	}
	return out, nil
}

// findOverlap reports a pair of overlapping slices, sweeping them in
// top-to-bottom order and keeping only slices still open at the sweep line.
func findOverlap(sl []DNGSlice) (int, int, bool) {
	order := make([]int, len(sl))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Or(
			cmp.Compare(sl[a].OffsetY, sl[b].OffsetY),
			cmp.Compare(sl[a].OffsetX, sl[b].OffsetX),
		)
	})

	var active []int
	for _, i := range order {
		r := sl[i].bounds()
		active = slices.DeleteFunc(active, func(j int) bool {
			return sl[j].bounds().Max.Y <= r.Min.Y
		})
		for _, j := range active {
			if sl[j].bounds().Overlaps(r) {
				return j, i, true
			}
		}
		active = append(active, i)
	}
	return 0, 0, false
}

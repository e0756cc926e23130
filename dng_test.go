package rawdec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"

	"github.com/gogpu/rawdec/bytestream"
)

// randomSamples returns n samples of at most bps bits.
func randomSamples(r *rand.Rand, n, bps int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(r.UintN(1 << bps))
	}
	return out
}

// predictRow replaces samples with horizontal differences at stride.
func predictRow(row []uint16, stride, bps int) []uint16 {
	mask := uint16(1<<bps - 1)
	out := make([]uint16, len(row))
	for i, v := range row {
		if i < stride {
			out[i] = v
			continue
		}
		out[i] = (v - row[i-stride]) & mask
	}
	return out
}

// packRows stores rows the way uncompressed DNG slices hold them.
func packRows(rows [][]uint16, bps int, order binary.ByteOrder) []byte {
	var out []byte
	for _, row := range rows {
		switch bps {
		case 8:
			for _, v := range row {
				out = append(out, byte(v))
			}
		case 16:
			for _, v := range row {
				out = order.(binary.AppendByteOrder).AppendUint16(out, v)
			}
		default:
			var w bitWriter
			for _, v := range row {
				w.put(uint32(v), bps)
			}
			out = append(out, w.flush(0)...)
		}
	}
	return out
}

// splitRows cuts samples into rows of n.
func splitRows(samples []uint16, n int) [][]uint16 {
	var rows [][]uint16
	for len(samples) > 0 {
		rows = append(rows, samples[:n])
		samples = samples[n:]
	}
	return rows
}

func decodeDNG(t *testing.T, img *Image, p DNGParams, opts ...Option) {
	t.Helper()
	d, err := NewDNG(img, p, opts...)
	if err != nil {
		t.Fatalf("NewDNG() error = %v", err)
	}
	if err := d.Decompress(context.Background()); err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
}

// =============================================================================
// Uncompressed
// =============================================================================

func TestDNGUncompressedBitDepths(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	tests := []struct {
		name  string
		bps   int
		order binary.ByteOrder
	}{
		{"8 bit", 8, nil},
		{"16 bit big endian", 16, binary.BigEndian},
		{"16 bit little endian", 16, binary.LittleEndian},
		{"12 bit", 12, nil},
		{"10 bit", 10, nil},
		{"14 bit", 14, nil},
		{"1 bit", 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Width 7 makes most packed rows end mid-byte.
			const w, h = 7, 5
			img, _ := NewImage(w, h, 1, 16)
			want := randomSamples(r, w*h, tt.bps)
			data := packRows(splitRows(want, w), tt.bps, cmpOrder(tt.order))

			decodeDNG(t, img, DNGParams{
				Compression:   CompressionNone,
				BitsPerSample: tt.bps,
				ByteOrder:     tt.order,
				Slices:        []DNGSlice{{Width: w, Height: h, Stream: bytestream.New(data, nil)}},
			})
			if diff := cmp.Diff(want, img.Pix()); diff != "" {
				t.Errorf("decoded samples mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func cmpOrder(o binary.ByteOrder) binary.ByteOrder {
	if o == nil {
		return binary.BigEndian
	}
	return o
}

func TestDNGStreamByteOrder(t *testing.T) {
	img, _ := NewImage(2, 1, 1, 16)
	data := []byte{0x34, 0x12, 0x78, 0x56}

	decodeDNG(t, img, DNGParams{
		Compression:   CompressionNone,
		BitsPerSample: 16,
		Slices:        []DNGSlice{{Width: 2, Height: 1, Stream: bytestream.New(data, binary.LittleEndian)}},
	})
	if diff := cmp.Diff([]uint16{0x1234, 0x5678}, img.Pix()); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDNGPredictors(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	tests := []struct {
		predictor Predictor
		cpp       int
		stride    int
	}{
		{PredictorHorizontal, 1, 1},
		{PredictorHorizontal, 3, 3},
		{PredictorHorizontalX2, 1, 2},
		{PredictorHorizontalX2, 2, 4},
		{PredictorHorizontalX4, 1, 4},
		{PredictorHorizontalX4, 3, 12},
	}
	for _, bps := range []int{16, 12, 8} {
		for _, tt := range tests {
			const w, h = 16, 3
			img, _ := NewImage(w, h, tt.cpp, bps)
			want := randomSamples(r, w*h*tt.cpp, bps)

			var rows [][]uint16
			for _, row := range splitRows(want, w*tt.cpp) {
				rows = append(rows, predictRow(row, tt.stride, bps))
			}
			decodeDNG(t, img, DNGParams{
				Compression:   CompressionNone,
				Predictor:     tt.predictor,
				BitsPerSample: bps,
				Slices:        []DNGSlice{{Width: w, Height: h, Stream: bytestream.New(packRows(rows, bps, binary.BigEndian), nil)}},
			})
			if diff := cmp.Diff(want, img.Pix()); diff != "" {
				t.Errorf("bps %d predictor %d cpp %d: samples mismatch (-want +got):\n%s",
					bps, tt.predictor, tt.cpp, diff)
			}
		}
	}
}

func TestDNGPredictorWraps(t *testing.T) {
	// 10 + 1020 wraps to 6 in 10 bits.
	img, _ := NewImage(2, 1, 1, 10)
	data := packRows([][]uint16{{10, 1020}}, 10, nil)

	decodeDNG(t, img, DNGParams{
		Compression:   CompressionNone,
		Predictor:     PredictorHorizontal,
		BitsPerSample: 10,
		Slices:        []DNGSlice{{Width: 2, Height: 1, Stream: bytestream.New(data, nil)}},
	})
	if diff := cmp.Diff([]uint16{10, 6}, img.Pix()); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// Deflate
// =============================================================================

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDNGDeflate(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	const w, h, bps = 24, 6, 16
	img, _ := NewImage(w, h, 1, bps)
	want := randomSamples(r, w*h, bps)

	var rows [][]uint16
	for _, row := range splitRows(want, w) {
		rows = append(rows, predictRow(row, 2, bps))
	}
	data := deflate(t, packRows(rows, bps, binary.LittleEndian))

	decodeDNG(t, img, DNGParams{
		Compression:   CompressionDeflate,
		Predictor:     PredictorHorizontalX2,
		BitsPerSample: bps,
		Slices:        []DNGSlice{{Width: w, Height: h, Stream: bytestream.New(data, binary.LittleEndian)}},
	})
	if diff := cmp.Diff(want, img.Pix()); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDNGDeflateShort(t *testing.T) {
	img, _ := NewImage(8, 2, 1, 16)
	data := deflate(t, make([]byte, 8*2*2-1))

	d, err := NewDNG(img, DNGParams{
		Compression:   CompressionDeflate,
		BitsPerSample: 16,
		Slices:        []DNGSlice{{Width: 8, Height: 2, Stream: bytestream.New(data, nil)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Decompress(context.Background()); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Decompress() error = %v, want ErrOutOfBounds", err)
	}
}

func TestDNGDeflateCorrupt(t *testing.T) {
	img, _ := NewImage(8, 2, 1, 16)
	d, err := NewDNG(img, DNGParams{
		Compression:   CompressionDeflate,
		BitsPerSample: 16,
		Slices:        []DNGSlice{{Width: 8, Height: 2, Stream: bytestream.New([]byte("not zlib data"), nil)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Decompress(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Decompress() error = %v, want ErrCorrupt", err)
	}
}

// =============================================================================
// Tiles
// =============================================================================

// TestDNGTiledEdgeCrop decodes a tile grid whose edge tiles overhang the
// image; the overhang holds junk that must not reach the image.
func TestDNGTiledEdgeCrop(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	const w, h, tw, th, bps = 10, 5, 4, 2, 12
	img, _ := NewImage(w, h, 1, bps)
	want := randomSamples(r, w*h, bps)

	var file []byte
	var offsets, counts []int
	for ty := 0; ty < h; ty += th {
		for tx := 0; tx < w; tx += tw {
			var rows [][]uint16
			for y := range th {
				row := make([]uint16, tw)
				for x := range row {
					if tx+x < w && ty+y < h {
						row[x] = want[(ty+y)*w+tx+x]
					} else {
						row[x] = 0xABC
					}
				}
				rows = append(rows, row)
			}
			tile := packRows(rows, bps, nil)
			offsets = append(offsets, len(file))
			counts = append(counts, len(tile))
			file = append(file, tile...)
		}
	}

	sl, err := TileSlices(img, bytestream.New(file, nil), tw, th, offsets, counts)
	if err != nil {
		t.Fatalf("TileSlices() error = %v", err)
	}
	decodeDNG(t, img, DNGParams{Compression: CompressionNone, BitsPerSample: bps, Slices: sl})
	if diff := cmp.Diff(want, img.Pix()); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestDNGWorkerCountsAgree(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	const w, h, tw, th, bps = 64, 48, 16, 8, 14

	var file []byte
	var offsets, counts []int
	for range (w / tw) * (h / th) {
		tile := packRows(splitRows(randomSamples(r, tw*th, bps), tw), bps, nil)
		offsets = append(offsets, len(file))
		counts = append(counts, len(tile))
		file = append(file, tile...)
	}

	var first []uint16
	for _, workers := range []int{1, 2, 3, 8} {
		img, _ := NewImage(w, h, 1, bps)
		sl, err := TileSlices(img, bytestream.New(file, nil), tw, th, offsets, counts)
		if err != nil {
			t.Fatal(err)
		}
		decodeDNG(t, img, DNGParams{Compression: CompressionNone, BitsPerSample: bps, Slices: sl}, WithWorkers(workers))
		if first == nil {
			first = img.Pix()
			continue
		}
		if diff := cmp.Diff(first, img.Pix()); diff != "" {
			t.Errorf("%d workers: output differs from 1 worker (-want +got):\n%s", workers, diff)
		}
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestNewDNGUnsupported(t *testing.T) {
	img, _ := NewImage(4, 4, 1, 12)
	slice := []DNGSlice{{Width: 4, Height: 4, Stream: bytestream.New(make([]byte, 64), nil)}}
	tests := []struct {
		name string
		p    DNGParams
	}{
		{"unknown compression", DNGParams{Compression: 5, BitsPerSample: 12}},
		{"floating point predictor", DNGParams{Compression: CompressionNone, Predictor: 34894, BitsPerSample: 12}},
		{"ljpeg with predictor", DNGParams{Compression: CompressionLJPEG, Predictor: PredictorHorizontal, BitsPerSample: 12}},
		{"zero bps", DNGParams{Compression: CompressionNone, BitsPerSample: 0}},
		{"17 bps", DNGParams{Compression: CompressionNone, BitsPerSample: 17}},
		{"1 bit ljpeg", DNGParams{Compression: CompressionLJPEG, BitsPerSample: 1}},
		{"deeper than image", DNGParams{Compression: CompressionNone, BitsPerSample: 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Slices = slice
			_, err := NewDNG(img, tt.p)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("NewDNG() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestNewDNGInvalidSlices(t *testing.T) {
	img, _ := NewImage(8, 8, 1, 16)
	bs := bytestream.New(make([]byte, 256), nil)
	tests := []struct {
		name   string
		slices []DNGSlice
	}{
		{"none", nil},
		{"empty", []DNGSlice{{Width: 0, Height: 4, Stream: bs}}},
		{"negative offset", []DNGSlice{{OffsetX: -1, Width: 4, Height: 4, Stream: bs}}},
		{"past right edge", []DNGSlice{{OffsetX: 6, Width: 4, Height: 4, Stream: bs}}},
		{"past bottom edge", []DNGSlice{{OffsetY: 5, Width: 4, Height: 4, Stream: bs}}},
		{"tile narrower than slice", []DNGSlice{{Width: 4, Height: 4, TileWidth: 3, Stream: bs}}},
		{"overlap", []DNGSlice{
			{Width: 4, Height: 4, Stream: bs},
			{OffsetX: 4, Width: 4, Height: 4, Stream: bs},
			{OffsetX: 3, OffsetY: 3, Width: 2, Height: 2, Stream: bs},
		}},
		{"gap", []DNGSlice{
			{Width: 8, Height: 4, Stream: bs},
			{OffsetY: 6, Width: 8, Height: 2, Stream: bs},
		}},
		{"partial row", []DNGSlice{{Width: 8, Height: 7, Stream: bs}, {OffsetY: 7, Width: 5, Height: 1, Stream: bs}}},
		{"duplicate", []DNGSlice{
			{OffsetY: 4, Width: 8, Height: 4, Stream: bs},
			{OffsetY: 4, Width: 8, Height: 4, Stream: bs},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDNG(img, DNGParams{Compression: CompressionNone, BitsPerSample: 16, Slices: tt.slices})
			if !errors.Is(err, ErrInvalidSlice) {
				t.Errorf("NewDNG() error = %v, want ErrInvalidSlice", err)
			}
		})
	}
}

func TestNewDNGCopiesSlices(t *testing.T) {
	img, _ := NewImage(8, 8, 1, 16)
	in := []DNGSlice{{Width: 8, Height: 8, Stream: bytestream.New(make([]byte, 128), nil)}}
	d, err := NewDNG(img, DNGParams{Compression: CompressionNone, BitsPerSample: 16, Slices: in})
	if err != nil {
		t.Fatal(err)
	}
	in[0].Width = 100
	d.Slices()[0].OffsetY = 4
	if got := d.Slices()[0]; got.Width != 8 || got.TileWidth != 8 || got.OffsetY != 0 {
		t.Errorf("Slices()[0] = %dx%d at y %d tile width %d, want 8x8 at y 0 tile width 8",
			got.Width, got.Height, got.OffsetY, got.TileWidth)
	}
}

func TestFindOverlap(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	for range 50 {
		tw, th := 1+r.IntN(8), 1+r.IntN(8)
		nx, ny := 1+r.IntN(6), 1+r.IntN(6)
		var sl []DNGSlice
		for y := range ny {
			for x := range nx {
				sl = append(sl, DNGSlice{OffsetX: x * tw, OffsetY: y * th, Width: tw, Height: th})
			}
		}
		r.Shuffle(len(sl), func(i, j int) { sl[i], sl[j] = sl[j], sl[i] })
		if a, b, ok := findOverlap(sl); ok {
			t.Fatalf("grid %dx%d of %dx%d tiles: slices %d and %d reported overlapping", nx, ny, tw, th, a, b)
		}

		// Grow one tile into its neighbour.
		i := r.IntN(len(sl))
		if nx > 1 && sl[i].OffsetX+tw < nx*tw {
			sl[i].Width++
		} else if ny > 1 && sl[i].OffsetY+th < ny*th {
			sl[i].Height++
		} else {
			continue
		}
		if _, _, ok := findOverlap(sl); !ok {
			t.Fatalf("grid %dx%d of %dx%d tiles: grown slice %d not reported", nx, ny, tw, th, i)
		}
	}
}

// =============================================================================
// Failures
// =============================================================================

func TestDNGTruncatedSlice(t *testing.T) {
	img, _ := NewImage(8, 10, 1, 16)
	var sl []DNGSlice
	for i := range 5 {
		size := 8 * 2 * 2
		if i == 3 {
			size -= 2
		}
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i + 1)
		}
		sl = append(sl, DNGSlice{OffsetY: 2 * i, Width: 8, Height: 2, Stream: bytestream.New(data, nil)})
	}

	d, err := NewDNG(img, DNGParams{Compression: CompressionNone, BitsPerSample: 16, Slices: sl}, WithWorkers(1))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Decompress(context.Background())

	var ie *ItemError
	if !errors.As(err, &ie) {
		t.Fatalf("Decompress() error = %v, want *ItemError", err)
	}
	if ie.Kind != "slice" || ie.Index != 3 {
		t.Errorf("ItemError = %s %d, want slice 3", ie.Kind, ie.Index)
	}
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Decompress() error = %v, want ErrOutOfBounds", err)
	}
	if !strings.Contains(err.Error(), "slice 3") {
		t.Errorf("error %q does not name the slice", err)
	}

	// Items before the failure ran, the one after it did not start.
	if got := img.Sample(0, 4, 0); got != 0x0303 {
		t.Errorf("slice 2 sample = %#x, want 0x0303", got)
	}
	if got := img.Sample(0, 8, 0); got != 0 {
		t.Errorf("slice 4 sample = %#x, want 0", got)
	}
}

func TestDNGDecompressCanceled(t *testing.T) {
	img, _ := NewImage(4, 4, 1, 8)
	d, err := NewDNG(img, DNGParams{
		Compression:   CompressionNone,
		BitsPerSample: 8,
		Slices:        []DNGSlice{{Width: 4, Height: 4, Stream: bytestream.New(make([]byte, 16), nil)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Decompress(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Decompress() error = %v, want context.Canceled", err)
	}
}

// Command rawdec decodes the raw data of a camera raw file into a 16-bit TIFF.
//
// The container is not parsed: the byte range, geometry and compression
// parameters come from the command line, as a metadata tool reports them.
//
//	rawdec -format panasonic -offset 2048 -width 5200 -height 3888 -bps 12 P1000001.RW2
//	rawdec -format dng -compression 7 -tiles 8192:91234,99426:90877 -width 512 -height 256 -tile-width 256 -tile-height 256 -bps 14 in.dng
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/tiff"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/rawdec"
	"github.com/gogpu/rawdec/bytestream"
)

type config struct {
	format      string
	output      string
	offset      int
	length      int
	width       int
	height      int
	cpp         int
	bps         int
	compression int
	predictor   int
	tileWidth   int
	tileHeight  int
	tiles       string
	little      bool
	fixLJPEG    bool
	workers     int
	verbose     bool
}

func main() {
	var c config
	flag.StringVar(&c.format, "format", "dng", "raw data format: dng or panasonic")
	flag.StringVar(&c.output, "output", "raw.tiff", "output file")
	flag.IntVar(&c.offset, "offset", 0, "start of the raw data in the input file")
	flag.IntVar(&c.length, "length", 0, "length of the raw data (0: to end of file)")
	flag.IntVar(&c.width, "width", 0, "image width")
	flag.IntVar(&c.height, "height", 0, "image height")
	flag.IntVar(&c.cpp, "cpp", 1, "samples per pixel")
	flag.IntVar(&c.bps, "bps", 16, "bits per sample")
	flag.IntVar(&c.compression, "compression", 1, "DNG compression: 1, 7 or 8")
	flag.IntVar(&c.predictor, "predictor", 1, "DNG predictor")
	flag.IntVar(&c.tileWidth, "tile-width", 0, "DNG tile width (0: image width)")
	flag.IntVar(&c.tileHeight, "tile-height", 0, "DNG tile height (0: image height)")
	flag.StringVar(&c.tiles, "tiles", "", "DNG tiles as offset:length pairs relative to -offset (default: one tile)")
	flag.BoolVar(&c.little, "little-endian", false, "DNG samples are little-endian")
	flag.BoolVar(&c.fixLJPEG, "fix-ljpeg", false, "skip the extra bits after category 16 lossless JPEG differences")
	flag.IntVar(&c.workers, "workers", 0, "decode workers (0: GOMAXPROCS)")
	flag.BoolVar(&c.verbose, "v", false, "debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rawdec [flags] file")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if c.verbose {
		rawdec.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(context.Background(), c, flag.Arg(0)); err != nil {
		log.Fatalf("rawdec: %v", err)
	}
}

func run(ctx context.Context, c config, input string) error {
	data, err := os.ReadFile(input) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if c.length == 0 {
		c.length = len(data) - c.offset
	}
	order := binary.ByteOrder(binary.BigEndian)
	if c.little {
		order = binary.LittleEndian
	}
	bs, err := bytestream.New(data, order).SubStream(c.offset, c.length)
	if err != nil {
		return fmt.Errorf("raw data range: %w", err)
	}

	img, err := rawdec.NewImage(c.width, c.height, c.cpp, c.bps)
	if err != nil {
		return err
	}
	params, err := buildParams(c, img, bs)
	if err != nil {
		return err
	}
	d, err := rawdec.New(img, params, rawdec.WithWorkers(c.workers))
	if err != nil {
		return err
	}

	start := time.Now()
	if err := d.Decompress(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := writeTIFF(c.output, img); err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	p.Printf("%s: %d x %d, %d samples in %v (%.1f Msamples/s)\n",
		c.output, img.Width(), img.Height(), len(img.Pix()), elapsed.Round(time.Microsecond),
		float64(len(img.Pix()))/elapsed.Seconds()/1e6)
	return nil
}

func buildParams(c config, img *rawdec.Image, bs bytestream.ByteStream) (rawdec.Params, error) {
	switch c.format {
	case "panasonic":
		return &rawdec.PanasonicV5Params{Stream: bs, BitsPerSample: c.bps}, nil
	case "dng":
		slices, err := dngSlices(c, img, bs)
		if err != nil {
			return nil, err
		}
		return &rawdec.DNGParams{
			Compression:   rawdec.Compression(c.compression),
			Predictor:     rawdec.Predictor(c.predictor),
			BitsPerSample: c.bps,
			FixLJPEG:      c.fixLJPEG,
			Slices:        slices,
		}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", c.format)
	}
}

func dngSlices(c config, img *rawdec.Image, bs bytestream.ByteStream) ([]rawdec.DNGSlice, error) {
	tw, th := c.tileWidth, c.tileHeight
	if tw == 0 {
		tw = img.Width()
	}
	if th == 0 {
		th = img.Height()
	}
	if c.tiles == "" {
		return rawdec.TileSlices(img, bs, tw, th, []int{0}, []int{bs.Len()})
	}

	var offsets, counts []int
	for _, pair := range strings.Split(c.tiles, ",") {
		off, n, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("tile %q: want offset:length", pair)
		}
		o, err := strconv.Atoi(off)
		if err != nil {
			return nil, fmt.Errorf("tile %q: %w", pair, err)
		}
		l, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("tile %q: %w", pair, err)
		}
		offsets = append(offsets, o)
		counts = append(counts, l)
	}
	return rawdec.TileSlices(img, bs, tw, th, offsets, counts)
}

func writeTIFF(path string, img *rawdec.Image) error {
	var m image.Image
	var err error
	switch img.CPP() {
	case 1:
		m, err = img.Gray16()
	case 3:
		m, err = img.RGBA64()
	default:
		return fmt.Errorf("cannot write a %d-sample image", img.CPP())
	}
	if err != nil {
		return err
	}

	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, m, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

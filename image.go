package rawdec

import (
	"fmt"
	"image"
	"image/color"
)

// maxSamples bounds the size of an Image buffer (2 GiB of uint16 samples).
const maxSamples = 1 << 30

// Image is a row-major grid of 16-bit sensor samples that decompressors
// write into.
//
// Each pixel holds CPP samples (1 for CFA data, 3 for linear RGB). Samples
// are stored unscaled, in the range [0, 2^BitsPerSample). Rows are Pitch
// samples apart.
//
// An Image is owned by the caller. During Decompress every work item
// writes only to its own region of the buffer, so an Image must not be
// read or written by other goroutines until Decompress returns.
type Image struct {
	width  int
	height int
	cpp    int
	bps    int
	pitch  int
	pix    []uint16
}

// NewImage allocates a zeroed image of width x height pixels with cpp
// samples per pixel and bps significant bits per sample.
func NewImage(width, height, cpp, bps int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if cpp < 1 || cpp > 4 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrInvalidDimensions, cpp)
	}
	if bps < 1 || bps > 16 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrInvalidDimensions, bps)
	}
	if width > maxSamples/cpp || height > maxSamples/(width*cpp) {
		return nil, fmt.Errorf("%w: %dx%dx%d exceeds %d samples", ErrInvalidDimensions, width, height, cpp, maxSamples)
	}
	pitch := width * cpp
	return &Image{
		width:  width,
		height: height,
		cpp:    cpp,
		bps:    bps,
		pitch:  pitch,
		pix:    make([]uint16, pitch*height),
	}, nil
}

// Width returns the width in pixels.
func (m *Image) Width() int { return m.width }

// Height returns the height in pixels.
func (m *Image) Height() int { return m.height }

// CPP returns the number of samples per pixel.
func (m *Image) CPP() int { return m.cpp }

// BitsPerSample returns the declared sample bit depth.
func (m *Image) BitsPerSample() int { return m.bps }

// Pitch returns the distance between rows, in samples.
func (m *Image) Pitch() int { return m.pitch }

// Pix returns the sample buffer.
func (m *Image) Pix() []uint16 { return m.pix }

// Row returns the samples of row y.
func (m *Image) Row(y int) []uint16 {
	off := y * m.pitch
	return m.pix[off : off+m.width*m.cpp : off+m.width*m.cpp]
}

// Sample returns sample c of the pixel at (x, y).
// Coordinates outside the image return 0.
func (m *Image) Sample(x, y, c int) uint16 {
	if x < 0 || x >= m.width || y < 0 || y >= m.height || c < 0 || c >= m.cpp {
		return 0
	}
	return m.pix[y*m.pitch+x*m.cpp+c]
}

// Bounds returns the image rectangle, anchored at the origin.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// Gray16 copies a single-sample image into an image.Gray16.
// Samples are not rescaled.
func (m *Image) Gray16() (*image.Gray16, error) {
	if m.cpp != 1 {
		return nil, fmt.Errorf("%w: Gray16 of a %d-sample image", ErrUnsupported, m.cpp)
	}
	out := image.NewGray16(m.Bounds())
	for y := range m.height {
		row := m.Row(y)
		dst := out.Pix[y*out.Stride:]
		for x, v := range row {
			dst[2*x] = uint8(v >> 8)
			dst[2*x+1] = uint8(v)
		}
	}
	return out, nil
}

// RGBA64 copies a three-sample image into an opaque image.RGBA64.
// Samples are not rescaled.
func (m *Image) RGBA64() (*image.RGBA64, error) {
	if m.cpp != 3 {
		return nil, fmt.Errorf("%w: RGBA64 of a %d-sample image", ErrUnsupported, m.cpp)
	}
	out := image.NewRGBA64(m.Bounds())
	for y := range m.height {
		row := m.Row(y)
		for x := range m.width {
			out.SetRGBA64(x, y, color.RGBA64{
				R: row[3*x],
				G: row[3*x+1],
				B: row[3*x+2],
				A: 0xffff,
			})
		}
	}
	return out, nil
}

// window is write access to a rectangle of an Image.
type window struct {
	pix    []uint16
	pitch  int
	width  int // in samples
	height int
}

// window returns the rectangle of w x h pixels at (x, y).
// The caller has checked that the rectangle lies inside the image.
func (m *Image) window(x, y, w, h int) window {
	off := y*m.pitch + x*m.cpp
	end := off + (h-1)*m.pitch + w*m.cpp
	return window{
		pix:    m.pix[off:end:end],
		pitch:  m.pitch,
		width:  w * m.cpp,
		height: h,
	}
}

// row returns row y of the window, capped to the window width.
func (w window) row(y int) []uint16 {
	off := y * w.pitch
	return w.pix[off : off+w.width : off+w.width]
}

// span is write access to a run of pixels in raster order.
type span struct {
	pix []uint16
}

// span returns the pixels with raster index in [begin, end).
func (m *Image) span(begin, end int) span {
	// pitch == width*cpp, so raster order is contiguous.
	b, e := begin*m.cpp, end*m.cpp
	return span{pix: m.pix[b:e:e]}
}

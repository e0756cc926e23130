package rawdec

import (
	"context"
	"fmt"

	"github.com/gogpu/rawdec/bytestream"
)

// Params selects a decompressor variant and carries its format parameters.
// It is implemented by *DNGParams and *PanasonicV5Params.
type Params interface {
	params()
}

// PanasonicV5Params describes Panasonic RW2 V5 raw data.
type PanasonicV5Params struct {
	// Stream starts at the first block of raw data.
	Stream bytestream.ByteStream

	// BitsPerSample is 12 or 14.
	BitsPerSample int
}

func (*DNGParams) params()         {}
func (*PanasonicV5Params) params() {}

// variant is a constructed decompressor of any format.
type variant interface {
	Decompress(ctx context.Context) error
}

// Decompressor decodes one raw image with the variant chosen by its Params.
type Decompressor struct {
	v variant
}

// New validates p against img and returns the matching decompressor.
//
// Example:
//
//	img, _ := rawdec.NewImage(w, h, 1, 14)
//	d, err := rawdec.New(img, &rawdec.PanasonicV5Params{Stream: bs, BitsPerSample: 14})
//	if err != nil {
//	    return err
//	}
//	err = d.Decompress(ctx)
func New(img *Image, p Params, opts ...Option) (*Decompressor, error) {
	var (
		v   variant
		err error
	)
	switch p := p.(type) {
	case *DNGParams:
		if p == nil {
			break
		}
		v, err = NewDNG(img, *p, opts...)
	case *PanasonicV5Params:
		if p == nil {
			break
		}
		v, err = NewPanasonicV5(img, p.Stream, p.BitsPerSample, opts...)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: params %T", ErrUnsupported, p)
	}
	return &Decompressor{v: v}, nil
}

// Decompress decodes the image. See DNGDecompressor.Decompress.
func (d *Decompressor) Decompress(ctx context.Context) error {
	return d.v.Decompress(ctx)
}

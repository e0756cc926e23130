// Package rawdec decodes the compressed pixel payload of camera raw files.
//
// # Overview
//
// rawdec takes the raw data of an image that a container parser has
// already located (byte ranges, geometry, bit depth, compression tags) and
// decodes it into a 16-bit sensor sample buffer. It does no file I/O,
// metadata parsing, color processing or demosaicing.
//
// # Quick Start
//
//	import "github.com/gogpu/rawdec"
//
//	img, err := rawdec.NewImage(width, height, 1, 14)
//	if err != nil {
//	    return err
//	}
//	d, err := rawdec.NewPanasonicV5(img, bytestream.New(data, nil), 14)
//	if err != nil {
//	    return err
//	}
//	if err := d.Decompress(ctx); err != nil {
//	    return err
//	}
//
// # Formats
//
//   - DNG tiles and strips: uncompressed, deflate and lossless JPEG, with
//     the horizontal difference predictors (NewDNG, TileSlices).
//   - Panasonic RW2 V5 fixed-size blocks, 12 and 14 bits (NewPanasonicV5).
//
// New selects the variant from a Params value.
//
// # Parallelism
//
// Every decoder splits its input into independent work items (DNG slices,
// Panasonic blocks) whose output regions are disjoint, and runs them on a
// bounded worker pool. The first failing item stops the remaining ones and
// is returned as an *ItemError. Use WithWorkers or WithExecutor to control
// dispatch.
//
// # Architecture
//
// The library is organized into:
//   - bytestream: bounds-checked byte cursor
//   - bitpump: MSB, JPEG and LSB bit readers
//   - internal/parallel: worker pool
//   - rawdec: Image, decoders, errors, logging
//
// # Logging
//
// rawdec is silent by default. Use SetLogger to enable debug logging of
// decoder setup and work item failures.
package rawdec

// Package cache provides a small generic LRU cache.
//
// rawdec uses it to share state that identical work items would otherwise
// rebuild, such as the Huffman tables repeated in every lossless JPEG tile
// of a DNG image. A cache belongs to one decompressor and is dropped with it.
//
//	c := cache.New[string, int](16)
//	v := c.GetOrCreate("key", func() int { return 42 })
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation
// (it contains a mutex).
package cache

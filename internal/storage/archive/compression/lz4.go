package compression

import (
	"fmt"

	"github.com/pierrec/lz4"
)

// NoCompressor stores data unchanged.
type NoCompressor struct{}

func (NoCompressor) Name() string { return "none" }

func (NoCompressor) ID() byte { return 0 }

// Compress returns a copy of data.
func (NoCompressor) Compress(data []byte) ([]byte, error) {
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Decompress returns a copy of data.
func (NoCompressor) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) != size {
		return nil, fmt.Errorf("stored size %d does not match %d", len(data), size)
	}
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// LZ4Compressor compresses records as raw LZ4 blocks.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) ID() byte { return 1 }

// Compress compresses data using LZ4.
func (LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	return compressed[:n], nil
}

// maxLZ4Ratio is the largest expansion an LZ4 block can encode.
const maxLZ4Ratio = 255

// Decompress decompresses an LZ4 block of known uncompressed size.
func (LZ4Compressor) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if size < 0 || size > len(data)*maxLZ4Ratio {
		return nil, fmt.Errorf("lz4 size %d impossible for %d compressed bytes", size, len(data))
	}

	decompressed := make([]byte, size)
	n, err := lz4.UncompressBlock(data, decompressed)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 decompressed %d bytes, expected %d", n, size)
	}
	return decompressed, nil
}

// Package compression provides the block compressors used for archived
// records.
package compression

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCompressor is returned for unregistered names or ids.
var ErrUnknownCompressor = errors.New("unknown compressor")

// Compressor defines the interface for compression algorithms.
type Compressor interface {
	// Name returns the name of the compression algorithm.
	Name() string

	// ID is the one-byte tag stored in front of compressed records.
	ID() byte

	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)

	// Decompress restores data of the given uncompressed size.
	Decompress(data []byte, size int) ([]byte, error)
}

// Factory is a function that creates a new compressor instance.
type Factory func() Compressor

var (
	mu     sync.RWMutex
	byName = make(map[string]Factory)
	byID   = make(map[byte]Factory)
)

// Register registers a compressor factory under its name and id.
func Register(factory Factory) {
	c := factory()
	mu.Lock()
	defer mu.Unlock()
	byName[c.Name()] = factory
	byID[c.ID()] = factory
}

// Get returns a new compressor instance for the given name.
func Get(name string) (Compressor, error) {
	mu.RLock()
	factory, ok := byName[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompressor, name)
	}
	return factory(), nil
}

// ByID returns a new compressor instance for a stored tag.
func ByID(id byte) (Compressor, error) {
	mu.RLock()
	factory, ok := byID[id]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCompressor, id)
	}
	return factory(), nil
}

// Available returns the registered compressor names in sorted order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(func() Compressor { return NoCompressor{} })
	Register(func() Compressor { return LZ4Compressor{} })
}

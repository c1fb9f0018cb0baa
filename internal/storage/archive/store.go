// Package archive stores finished simulation reports in a pluggable
// key-value or SQL backend.
package archive

//go:generate mockgen -destination=mock_archive/mock_store.go -package=mock_archive github.com/LeJamon/ackchain-sim/internal/storage/archive Store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is a byte-level key-value store. Keys are report names.
type Store interface {
	// Name returns the backend name.
	Name() string
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
	// Close releases the backend.
	Close() error
}

// Config configures a backend.
type Config struct {
	// Path is the database directory (pebble, leveldb) or file (sqlite).
	Path string
}

// BackendFactory is a function that creates a new backend instance.
type BackendFactory func(config Config) (Store, error)

var (
	backendMu        sync.RWMutex
	backendFactories = make(map[string]BackendFactory)
)

// RegisterBackend registers a backend factory with the given name.
func RegisterBackend(name string, factory BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactories[name] = factory
}

// CreateBackend creates a new backend instance for the given name and configuration.
func CreateBackend(name string, config Config) (Store, error) {
	backendMu.RLock()
	factory, ok := backendFactories[name]
	backendMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	return factory(config)
}

// AvailableBackends returns the registered backend names in sorted order.
func AvailableBackends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()

	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterBackend("memory", func(Config) (Store, error) { return NewMemoryStore(), nil })
	RegisterBackend("pebble", NewPebbleStore)
	RegisterBackend("leveldb", NewLevelDBStore)
	RegisterBackend("sqlite", NewSQLiteStore)
}

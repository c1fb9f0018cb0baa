package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps records in a Pebble database.
type PebbleStore struct {
	mu   sync.RWMutex
	db   *pebble.DB
	path string
}

// NewPebbleStore opens (creating if needed) a Pebble database at config.Path.
func NewPebbleStore(config Config) (Store, error) {
	if config.Path == "" {
		return nil, errors.New("pebble: path is required")
	}
	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", config.Path, err)
	}

	db, err := pebble.Open(config.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open PebbleDB at %s: %w", config.Path, err)
	}
	return &PebbleStore{db: db, path: config.Path}, nil
}

func (p *PebbleStore) Name() string { return fmt.Sprintf("pebble(%s)", p.path) }

func (p *PebbleStore) Put(_ context.Context, key string, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrClosed
	}
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *PebbleStore) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrClosed
	}

	val, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	valCopy := make([]byte, len(val))
	copy(valCopy, val)
	return valCopy, nil
}

func (p *PebbleStore) Delete(_ context.Context, key string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrClosed
	}
	return p.db.Delete([]byte(key), pebble.Sync)
}

func (p *PebbleStore) Keys(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrClosed
	}

	iter, err := p.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

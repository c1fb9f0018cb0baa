package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore keeps records in a LevelDB database.
type LevelDBStore struct {
	mu   sync.RWMutex
	db   *leveldb.DB
	path string
}

// NewLevelDBStore opens (creating if needed) a LevelDB database at config.Path.
func NewLevelDBStore(config Config) (Store, error) {
	if config.Path == "" {
		return nil, errors.New("leveldb: path is required")
	}
	db, err := leveldb.OpenFile(config.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", config.Path, err)
	}
	return &LevelDBStore{db: db, path: config.Path}, nil
}

func (s *LevelDBStore) Name() string { return fmt.Sprintf("leveldb(%s)", s.path) }

func (s *LevelDBStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *LevelDBStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	data, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	return data, nil
}

func (s *LevelDBStore) Delete(_ context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Delete([]byte(key), nil)
}

func (s *LevelDBStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (s *LevelDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

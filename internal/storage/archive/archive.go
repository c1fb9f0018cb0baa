package archive

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LeJamon/ackchain-sim/internal/report"
)

// Options configure Open.
type Options struct {
	Backend     string
	Path        string
	CacheSize   int
	Compression string
}

// Archive stores reports by name on top of a Store, with an LRU cache of
// decoded reports.
type Archive struct {
	store Store
	codec *Codec
	// nil when caching is disabled
	cache *lru.Cache[string, *report.Report]
}

// Open creates the configured backend and wraps it.
func Open(opts Options) (*Archive, error) {
	store, err := CreateBackend(opts.Backend, Config{Path: opts.Path})
	if err != nil {
		return nil, err
	}
	a, err := New(store, opts.Compression, opts.CacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// New wraps an open store. A cacheSize of zero disables the cache.
func New(store Store, compressor string, cacheSize int) (*Archive, error) {
	c, err := NewCodec(compressor)
	if err != nil {
		return nil, err
	}
	a := &Archive{store: store, codec: c}
	if cacheSize > 0 {
		a.cache, err = lru.New[string, *report.Report](cacheSize)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Backend returns the name of the underlying store.
func (a *Archive) Backend() string { return a.store.Name() }

// Put stores r under its name, replacing an earlier report of the same name.
func (a *Archive) Put(ctx context.Context, r *report.Report) error {
	if r.Name == "" {
		return report.ErrEmptyName
	}
	data, err := a.codec.Encode(r)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, r.Name, data); err != nil {
		return fmt.Errorf("archive %s: %w", r.Name, err)
	}
	if a.cache != nil {
		cp := *r
		a.cache.Add(r.Name, &cp)
	}
	return nil
}

// Get returns the report stored under name.
func (a *Archive) Get(ctx context.Context, name string) (*report.Report, error) {
	if a.cache != nil {
		if r, ok := a.cache.Get(name); ok {
			cp := *r
			return &cp, nil
		}
	}

	data, err := a.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	r, err := a.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", name, err)
	}
	if a.cache != nil {
		cp := *r
		a.cache.Add(name, &cp)
	}
	return r, nil
}

// List returns the names of all archived reports in ascending order.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	return a.store.Keys(ctx)
}

// Delete removes the report stored under name.
func (a *Archive) Delete(ctx context.Context, name string) error {
	if a.cache != nil {
		a.cache.Remove(name)
	}
	return a.store.Delete(ctx, name)
}

// Close closes the underlying store.
func (a *Archive) Close() error {
	if a.cache != nil {
		a.cache.Purge()
	}
	return a.store.Close()
}

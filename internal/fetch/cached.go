package fetch

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL is how long a website snapshot is reused.
const DefaultCacheTTL = 6 * time.Hour

// Snapshotter produces website snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context, url string) (*Snapshot, error)
}

// CachedFetcher memoizes snapshots per URL for a bounded time.
// Failed fetches are not cached.
type CachedFetcher struct {
	options *Options
	cache   *expirable.LRU[string, *Snapshot]
	fetch   func(ctx context.Context, url string, opts *Options) (*Snapshot, error)
}

// CachedFetcherConfig holds configuration for the cached fetcher.
type CachedFetcherConfig struct {
	Size     int
	CacheTTL time.Duration
	Options  *Options
}

// NewCachedFetcher creates a new cached fetcher.
func NewCachedFetcher(config *CachedFetcherConfig) *CachedFetcher {
	if config == nil {
		config = &CachedFetcherConfig{}
	}
	if config.Size <= 0 {
		config.Size = 128
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	return &CachedFetcher{
		options: config.Options,
		cache:   expirable.NewLRU[string, *Snapshot](config.Size, nil, config.CacheTTL),
		fetch:   TakeSnapshot,
	}
}

// Snapshot returns a cached snapshot when fresh, otherwise fetches one.
func (f *CachedFetcher) Snapshot(ctx context.Context, url string) (*Snapshot, error) {
	if snap, ok := f.cache.Get(url); ok {
		return snap, nil
	}
	snap, err := f.fetch(ctx, url, f.options)
	if err != nil {
		return nil, err
	}
	f.cache.Add(url, snap)
	return snap, nil
}

// Len reports the number of cached snapshots.
func (f *CachedFetcher) Len() int {
	return f.cache.Len()
}

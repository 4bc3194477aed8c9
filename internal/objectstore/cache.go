package objectstore

import (
	"context"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedGet is the value kept per path: the blob bytes plus the etag they
// were read at, so a cache hit can still answer Head without a round trip.
type cachedGet struct {
	data []byte
	etag string
}

// CachedStore wraps a Store with a bounded in-memory LRU of Get results.
// Day index documents and small chunk-ladder blobs are re-read far more
// often than they change (every SSE catch-up replays the same day), so a
// coordinator process fronting its Store with this cache avoids hammering
// the backend for hot days. Immutable chunk blobs are cached unconditionally;
// mutable day index documents are invalidated on every Put through the
// cache so a writer never serves a reader stale bytes.
type CachedStore struct {
	backend Store
	gets    *lru.Cache[string, cachedGet]
}

// NewCachedStore wraps backend with an LRU of the given capacity (entry
// count, not bytes — callers size it to the expected hot-day working set).
func NewCachedStore(backend Store, capacity int) (*CachedStore, error) {
	c, err := lru.New[string, cachedGet](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backend: backend, gets: c}, nil
}

func (c *CachedStore) Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error) {
	etag, err := c.backend.Put(ctx, path, data, opts)
	if err != nil {
		return "", err
	}
	c.gets.Remove(path)
	return etag, nil
}

func (c *CachedStore) Get(ctx context.Context, path string) ([]byte, error) {
	if v, ok := c.gets.Get(path); ok {
		return v.data, nil
	}
	data, err := c.backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	meta, err := c.backend.Head(ctx, path)
	if err != nil {
		return data, nil
	}
	c.gets.Add(path, cachedGet{data: data, etag: meta.ETag})
	return data, nil
}

func (c *CachedStore) Head(ctx context.Context, path string) (ObjectMeta, error) {
	if v, ok := c.gets.Get(path); ok {
		return ObjectMeta{Path: path, Size: int64(len(v.data)), ETag: v.etag}, nil
	}
	return c.backend.Head(ctx, path)
}

func (c *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return c.backend.List(ctx, prefix)
}

func (c *CachedStore) PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return c.backend.PresignGet(ctx, path, ttl)
}

// PutStream delegates straight to the backend when it supports streaming,
// invalidating any cached Get for path; otherwise it buffers through Put.
func (c *CachedStore) PutStream(ctx context.Context, path string, r io.Reader, size int64, opts PutOptions) (string, error) {
	if sp, ok := c.backend.(StreamPutter); ok {
		etag, err := sp.PutStream(ctx, path, r, size, opts)
		if err != nil {
			return "", err
		}
		c.gets.Remove(path)
		return etag, nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return c.Put(ctx, path, buf, opts)
}

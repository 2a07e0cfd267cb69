package cache

import (
	"context"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader fronts an LRUCache with a load function. Concurrent misses for one
// key share a single load. Invalidate bumps a generation so that loads which
// started before it neither populate the cache nor serve later callers.
type Loader[T any] struct {
	cache *LRUCache[T]
	group singleflight.Group
	gen   atomic.Uint64
}

func NewLoader[T any](c *LRUCache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key or calls load and caches its result.
// Errors are not cached.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	gen := l.gen.Load()
	flightKey := key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := l.group.Do(flightKey, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		if l.gen.Load() == gen {
			l.cache.Set(key, val)
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	val, _ := v.(T)
	return val, nil
}

// Invalidate drops every key with the given prefix.
func (l *Loader[T]) Invalidate(prefix string) int {
	l.gen.Add(1)
	return l.cache.DeletePrefix(prefix)
}

func (l *Loader[T]) Cache() *LRUCache[T] {
	return l.cache
}

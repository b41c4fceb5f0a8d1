// Package cache holds rendered view payloads keyed by request path.
// Mutations invalidate a path and everything under it.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Store is a path-keyed cache of JSON-encodable values.
type Store interface {
	// Get decodes the value at key into dest and reports whether it was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Generation changes on every Invalidate.
	Generation(ctx context.Context) (uint64, error)
	// SetIfGeneration stores value only while the generation still equals gen.
	SetIfGeneration(ctx context.Context, gen uint64, key string, value any, ttl time.Duration) error
	// Invalidate drops every key equal to or below each path.
	Invalidate(ctx context.Context, paths ...string) error
}

// Under reports whether key is path itself or lies below it.
func Under(key, path string) bool {
	if key == path {
		return true
	}
	return strings.HasPrefix(key, strings.TrimSuffix(path, "/")+"/")
}

// Load returns the cached value at key, computing and storing it on a miss.
// A value computed while an Invalidate ran is returned but not stored.
// Cache failures never fail the call.
func Load[T any](ctx context.Context, s Store, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var (
		v      T
		gen    uint64
		genErr error
	)
	if s != nil {
		if ok, err := s.Get(ctx, key, &v); err == nil && ok {
			return v, nil
		}
		gen, genErr = s.Generation(ctx)
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	if s != nil && genErr == nil {
		_ = s.SetIfGeneration(ctx, gen, key, v, ttl)
	}
	return v, nil
}

func encode(v any) ([]byte, error) { return json.Marshal(v) }

func decode(b []byte, dest any) error { return json.Unmarshal(b, dest) }

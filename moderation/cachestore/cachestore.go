// Package cachestore is a small namespaced string cache with TTL. The engine
// caches conversation settings and analyzer assessments here so hot paths
// avoid repeated store reads.
package cachestore

import (
	"context"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

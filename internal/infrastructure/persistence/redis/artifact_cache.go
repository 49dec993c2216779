package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
)

// ArtifactCache maps (kind, recipient name, program, issue date) to a rendered file path.
type ArtifactCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewArtifactCache creates an artifact cache with the given entry lifetime.
func NewArtifactCache(cache *Cache, ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{cache: cache, ttl: ttl}
}

// ArtifactKey is the namespace-relative key of a rendered artifact.
// The name keeps its exact spelling since it is printed on the image.
func ArtifactKey(ref notification.ArtifactRef) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{ref.Name, ref.Program, ref.IssueDate}, "\x00")))
	return "artifact:" + string(ref.Kind) + ":" + hex.EncodeToString(sum[:12])
}

// Lookup returns the cached path, with ok=false on a miss.
func (a *ArtifactCache) Lookup(ctx context.Context, ref notification.ArtifactRef) (string, bool, error) {
	path, err := a.cache.Get(ctx, a.cache.Key(ArtifactKey(ref)))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// Store records the path of a freshly rendered artifact.
func (a *ArtifactCache) Store(ctx context.Context, ref notification.ArtifactRef, path string) error {
	return a.cache.Set(ctx, a.cache.Key(ArtifactKey(ref)), path, a.ttl)
}

// Forget drops a cached entry, used when the file no longer exists.
func (a *ArtifactCache) Forget(ctx context.Context, ref notification.ArtifactRef) error {
	return a.cache.Delete(ctx, a.cache.Key(ArtifactKey(ref)))
}

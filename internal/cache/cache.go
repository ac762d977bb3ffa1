// Package cache defines the key/value cache contract shared by the curation
// components, together with in-memory and Redis implementations.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Key namespaces. Catalog mutations invalidate them by prefix.
const (
	PrefixBundles        = "bundles_"
	PrefixUserFilters    = "user_filters_"
	PrefixArticleFilter  = "article_filter_"
	PrefixFeedValidation = "feed_validation_"
)

// Cache is a key/value store with per-entry TTL and prefix invalidation.
// Implementations must be safe for concurrent use. On key collision the
// last writer wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// GetJSON loads key and decodes it into v. It reports whether the key was found.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// Hash returns a stable hex digest of the JSON encoding of parts.
func Hash(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("hash: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache is the subset of storage.RedisClient the services use. Get returns
// "" and a nil error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

const (
	defaultKeyCacheTTL = 5 * time.Minute

	// keyLookupTimeout bounds a shared tenant key lookup, which no longer
	// follows the deadline of the request that started it.
	keyLookupTimeout = 5 * time.Second
)

// generateKey returns a new plain key carrying prefix and its storage hash.
func generateKey(prefix string) (string, string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random key: %w", err)
	}

	key := prefix + base64.URLEncoding.EncodeToString(keyBytes)
	return key, hashKey(key), nil
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func cacheKey(keyHash string) string {
	return fmt.Sprintf("apikey:cache:%s", keyHash)
}

func tenantCacheKey(keyHash string) string {
	return fmt.Sprintf("tenantkey:cache:%s", keyHash)
}

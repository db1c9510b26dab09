package plancache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTier is a GlobalTier backed by go-redis, letting multiple brain
// instances share one fingerprint→plan cache.
type RedisTier struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTier wraps an existing redis client. keyPrefix namespaces keys
// (e.g. "brain:plancache:") so the cache can share a Redis instance with
// other subsystems.
func NewRedisTier(client *redis.Client, keyPrefix string) *RedisTier {
	if keyPrefix == "" {
		keyPrefix = "brain:plancache:"
	}
	return &RedisTier{client: client, keyPrefix: keyPrefix}
}

func (r *RedisTier) key(fingerprint string) string {
	return r.keyPrefix + fingerprint
}

// Get implements GlobalTier.
func (r *RedisTier) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	blob, err := r.client.Get(ctx, r.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

// Set implements GlobalTier. ttl of 0 means no expiry.
func (r *RedisTier) Set(ctx context.Context, fingerprint string, blob []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(fingerprint), blob, ttl).Err()
}

// Del implements GlobalTier.
func (r *RedisTier) Del(ctx context.Context, fingerprint string) error {
	return r.client.Del(ctx, r.key(fingerprint)).Err()
}

// Package cache provides a redis-backed cache for verification verdicts and
// gateway status. The cache is an optimization only: verification reads
// through to the ledger on every miss and callers never treat a cached
// verdict as authoritative for longer than its TTL.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"receiptanchor/internal/anchoring/models"
	"receiptanchor/internal/platform/redis"
)

// VerificationCache stores recent verification results keyed by record ID.
// A nil client disables the cache; all operations become no-ops.
type VerificationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewVerificationCache(client *redis.Client, ttl time.Duration) *VerificationCache {
	return &VerificationCache{client: client, ttl: ttl}
}

func verificationKey(recordID string) string {
	return "receiptanchor:verify:" + recordID
}

// Get returns the cached result for recordID, or nil on miss, disabled
// cache, or redis failure. Cache errors are deliberately swallowed: a
// broken cache must never break verification.
func (c *VerificationCache) Get(ctx context.Context, recordID string) *models.VerificationResult {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, verificationKey(recordID)).Bytes()
	if err != nil {
		return nil
	}
	var result models.VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return &result
}

// Set stores a verification result with the configured TTL.
func (c *VerificationCache) Set(ctx context.Context, result *models.VerificationResult) {
	if c == nil || c.client == nil || result == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, verificationKey(result.RecordID), raw, c.ttl).Err()
}

// Invalidate drops the cached result for recordID, if any.
func (c *VerificationCache) Invalidate(ctx context.Context, recordID string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, verificationKey(recordID)).Err()
}

// Enabled reports whether a backing client is configured.
func (c *VerificationCache) Enabled() bool {
	return c != nil && c.client != nil
}

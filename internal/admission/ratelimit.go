package admission

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/interfaces"
)

const rateLimitTTL = 120 * time.Second

// RateLimiter enforces the per-IP and per-key fixed-window counters of
// spec.md §4.3, shaped after the teacher's cleanup/sweep idiom but
// re-grounded on broker-backed counters instead of an in-process map —
// the spec mandates a shared window visible to every process.
type RateLimiter struct {
	broker   interfaces.Broker
	ipLimit  int
	keyLimit int
	hmacKey  []byte
}

// NewRateLimiter constructs a RateLimiter. hmacKey truncates the API key
// before it's used as part of a broker key, so the raw key never appears
// verbatim in the keyspace.
func NewRateLimiter(b interfaces.Broker, ipLimit, keyLimit int, hmacKey []byte) *RateLimiter {
	return &RateLimiter{broker: b, ipLimit: ipLimit, keyLimit: keyLimit, hmacKey: hmacKey}
}

// Allow computes the current minute bucket and increments the IP counter,
// then (if apiKey is non-empty) the HMAC-truncated key counter. The two
// increments are separate broker calls, not one pipeline; a request
// rejected on the IP count does not increment the key counter. Broker
// errors degrade to allow — an explicit availability-over-strictness
// trade-off (spec.md §4.3, §9).
func (r *RateLimiter) Allow(ctx context.Context, ip, apiKey string) bool {
	minute := time.Now().Unix() / 60

	ipCount, err := r.broker.Incr(ctx, broker.RateLimitIPKey(ip, minute), rateLimitTTL)
	if err != nil {
		return true
	}
	if ipCount > int64(r.ipLimit) {
		return false
	}

	if apiKey == "" {
		return true
	}

	keyCount, err := r.broker.Incr(ctx, broker.RateLimitAPIKeyKey(r.hashKey(apiKey), minute), rateLimitTTL)
	if err != nil {
		return true
	}
	return keyCount <= int64(r.keyLimit)
}

func (r *RateLimiter) hashKey(apiKey string) string {
	mac := hmac.New(sha256.New, r.hmacKey)
	mac.Write([]byte(apiKey))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

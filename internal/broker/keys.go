// Package broker implements the Broker Adapter (C1): typed operations
// over the shared key-value + pub/sub store, grounded on the teacher's
// one-store-per-concern adapter shape (internal/storage/surrealdb) and
// re-pointed at a Redis-shaped broker per the spec's assumed substrate.
package broker

import "fmt"

// Key builders for the broker keyspace (spec.md §6).

func JobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func QueueKey(language string) string {
	return fmt.Sprintf("queue:%s", language)
}

func UpdatesChannel(jobID string) string {
	return fmt.Sprintf("job:%s:updates", jobID)
}

const NotificationsChannel = "job_notifications"

func CacheKey(jobID string) string {
	return fmt.Sprintf("cache:%s", jobID)
}

func RateLimitIPKey(ip string, minute int64) string {
	return fmt.Sprintf("ratelimit:ip:%s:%d", ip, minute)
}

func RateLimitAPIKeyKey(hash string, minute int64) string {
	return fmt.Sprintf("ratelimit:apikey:%s:%d", hash, minute)
}

const SecurityEventsKey = "security_events"

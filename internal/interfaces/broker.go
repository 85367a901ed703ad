// Package interfaces holds the narrow contracts each codr component is
// built against, following the teacher's one-interface-per-concern
// convention (see the original internal/interfaces/storage.go) so every
// component can be tested against a fake without touching a live broker.
package interfaces

import (
	"context"
	"time"
)

// PipelineOp describes a single operation to run inside a Broker.Pipeline
// call — a batched set of writes issued in a single round trip.
type PipelineOp struct {
	Op   string // "incr" | "expire"
	Key  string
	Args []any
}

// Broker is the typed adapter over the shared key-value + pub/sub store
// (C1). The Redis implementation retries transient transport errors
// internally with bounded backoff and surfaces apierr.BrokerUnavailable
// once retries are exhausted; apierr.BrokerTransient is never returned.
type Broker interface {
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSetFields(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	LeftPush(ctx context.Context, queue string, value string) error
	BlockingRightPop(ctx context.Context, queue string, timeout time.Duration) (string, error)
	QueueLen(ctx context.Context, queue string) (int64, error)
	TrimList(ctx context.Context, key string, keepLast int64) error

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Pipeline(ctx context.Context, ops []PipelineOp) ([]int64, error)
	Incr(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a live pub/sub subscription; Channel delivers raw
// message payloads until Close is called or the underlying connection
// drops.
type Subscription interface {
	Channel() <-chan []byte
	Close() error
}

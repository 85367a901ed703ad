package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
)

// maxRetries and the backoff schedule mirror the teacher's watchLoop
// (internal/services/jobmanager/watcher.go): bounded exponential backoff,
// then surface a terminal error rather than retry forever.
const (
	maxRetries  = 5
	baseBackoff = 200 * time.Millisecond
)

// RedisBroker implements interfaces.Broker over github.com/redis/go-redis/v9.
type RedisBroker struct {
	client *redis.Client
	logger *common.Logger
}

// New dials a Redis client from the given address/password/db and
// verifies connectivity with a single Ping.
func New(ctx context.Context, addr, password string, db, poolSize int, logger *common.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	b := &RedisBroker{client: client, logger: logger}
	if err := b.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("broker: initial connection failed: %w", err)
	}
	return b, nil
}

// withRetry runs fn, retrying on transient errors with bounded backoff,
// and wraps an exhausted-retries failure as apierr.BrokerUnavailable.
func (b *RedisBroker) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := baseBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return fmt.Errorf("broker %s: %w", op, lastErr)
		}
		if b.logger != nil {
			b.logger.Warn().Str("op", op).Int("attempt", attempt+1).Err(lastErr).Msg("broker transient error, retrying")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &apierr.Error{Kind: apierr.BrokerUnavailable, Message: fmt.Sprintf("broker %s: retries exhausted: %v", op, lastErr)}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return false
	}
	return true
}

func (b *RedisBroker) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := b.withRetry(ctx, "hash_get_all", func() error {
		var e error
		out, e = b.client.HGetAll(ctx, key).Result()
		return e
	})
	return out, err
}

func (b *RedisBroker) HashSetFields(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	return b.withRetry(ctx, "hash_set_fields", func() error {
		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (b *RedisBroker) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.withRetry(ctx, "set_with_ttl", func() error {
		return b.client.Set(ctx, key, value, ttl).Err()
	})
}

func (b *RedisBroker) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	var found bool
	err := b.withRetry(ctx, "get", func() error {
		v, e := b.client.Get(ctx, key).Result()
		if errors.Is(e, redis.Nil) {
			found = false
			return nil
		}
		if e != nil {
			return e
		}
		val, found = v, true
		return nil
	})
	return val, found, err
}

func (b *RedisBroker) Delete(ctx context.Context, key string) error {
	return b.withRetry(ctx, "delete", func() error {
		return b.client.Del(ctx, key).Err()
	})
}

func (b *RedisBroker) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := b.withRetry(ctx, "keys_by_prefix", func() error {
		var cursor uint64
		out = out[:0]
		for {
			keys, next, e := b.client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if e != nil {
				return e
			}
			out = append(out, keys...)
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	return out, err
}

func (b *RedisBroker) LeftPush(ctx context.Context, queue, value string) error {
	return b.withRetry(ctx, "left_push", func() error {
		return b.client.LPush(ctx, queue, value).Err()
	})
}

// BlockingRightPop is a single attempt with the given timeout — not
// wrapped in withRetry, since the worker loop (C8) treats a timeout as a
// normal empty-queue result, not a transient error to retry around.
// Any transport failure (connection loss, i/o timeout) is surfaced as
// apierr.BrokerUnavailable so the Worker Loop's own backoff (spec.md
// §4.8 Resilience) can retry instead of exiting.
func (b *RedisBroker) BlockingRightPop(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	res, err := b.client.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", &apierr.Error{Kind: apierr.BrokerUnavailable, Message: fmt.Sprintf("broker blocking_right_pop: %v", err)}
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// TrimList keeps only the keepLast most recently left-pushed elements of
// key (the head of the list), implementing the "trim to last N on each
// push" bound on security_events (spec.md §6).
func (b *RedisBroker) TrimList(ctx context.Context, key string, keepLast int64) error {
	return b.withRetry(ctx, "trim_list", func() error {
		return b.client.LTrim(ctx, key, 0, keepLast-1).Err()
	})
}

func (b *RedisBroker) QueueLen(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := b.withRetry(ctx, "queue_len", func() error {
		var e error
		n, e = b.client.LLen(ctx, queue).Result()
		return e
	})
	return n, err
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.withRetry(ctx, "publish", func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

// redisSubscription adapts *redis.PubSub to interfaces.Subscription.
type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	cancel context.CancelFunc
}

func (s *redisSubscription) Channel() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	s.cancel()
	return s.pubsub.Close()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (interfaces.Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("broker subscribe %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{pubsub: pubsub, out: make(chan []byte, 64), cancel: cancel}

	go func() {
		defer close(sub.out)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.out <- []byte(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

func (b *RedisBroker) Pipeline(ctx context.Context, ops []interfaces.PipelineOp) ([]int64, error) {
	results := make([]int64, len(ops))
	err := b.withRetry(ctx, "pipeline", func() error {
		pipe := b.client.TxPipeline()
		cmds := make([]*redis.IntCmd, len(ops))
		for i, op := range ops {
			switch op.Op {
			case "incr":
				cmds[i] = pipe.Incr(ctx, op.Key)
			case "expire":
				if len(op.Args) > 0 {
					if d, ok := op.Args[0].(time.Duration); ok {
						pipe.Expire(ctx, op.Key, d)
					}
				}
			}
		}
		_, e := pipe.Exec(ctx)
		if e != nil && !errors.Is(e, redis.Nil) {
			return e
		}
		for i, cmd := range cmds {
			if cmd != nil {
				results[i], _ = cmd.Result()
			}
		}
		return nil
	})
	return results, err
}

// Incr increments key and, only on the write that creates it (count
// becomes 1), sets ttlOnCreate — a fixed-window bucket, not a sliding
// one (spec.md §4.3: "120-second TTL on first write").
func (b *RedisBroker) Incr(ctx context.Context, key string, ttlOnCreate time.Duration) (int64, error) {
	var n int64
	err := b.withRetry(ctx, "incr", func() error {
		v, e := b.client.Incr(ctx, key).Result()
		if e != nil {
			return e
		}
		n = v
		if n == 1 && ttlOnCreate > 0 {
			if e := b.client.Expire(ctx, key, ttlOnCreate).Err(); e != nil {
				return e
			}
		}
		return nil
	})
	return n, err
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ interfaces.Broker = (*RedisBroker)(nil)

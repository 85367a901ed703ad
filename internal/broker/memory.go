package broker

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codr-run/codr/internal/interfaces"
)

// Memory is an in-process implementation of interfaces.Broker, used by
// unit tests across packages that need a broker without a live Redis
// container — mirrors the teacher's test/common/mocks.go convention of a
// shared fake per backing store, kept alongside the real adapter rather
// than duplicated per test package.
type Memory struct {
	mu       sync.Mutex
	hashes   map[string]map[string]string
	strings  map[string]string
	lists    map[string]*list.List
	subs     map[string][]chan []byte
	counters map[string]int64
}

// NewMemory constructs an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{
		hashes:   make(map[string]map[string]string),
		strings:  make(map[string]string),
		lists:    make(map[string]*list.List),
		subs:     make(map[string][]chan []byte),
		counters: make(map[string]int64),
	}
}

func (m *Memory) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) HashSetFields(_ context.Context, key string, fields map[string]any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = toStr(v)
	}
	return nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	delete(m.hashes, key)
	return nil
}

func (m *Memory) KeysByPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.strings {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	for k := range m.hashes {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) LeftPush(_ context.Context, queue, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[queue]
	if !ok {
		l = list.New()
		m.lists[queue] = l
	}
	l.PushFront(value)
	return nil
}

func (m *Memory) BlockingRightPop(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		l, ok := m.lists[queue]
		if ok && l.Len() > 0 {
			back := l.Back()
			l.Remove(back)
			m.mu.Unlock()
			return back.Value.(string), nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *Memory) TrimList(_ context.Context, key string, keepLast int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok {
		return nil
	}
	for int64(l.Len()) > keepLast {
		l.Remove(l.Back())
	}
	return nil
}

func (m *Memory) QueueLen(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[queue]
	if !ok {
		return 0, nil
	}
	return int64(l.Len()), nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	chans := append([]chan []byte(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

type memorySubscription struct {
	ch     chan []byte
	closer func()
}

func (s *memorySubscription) Channel() <-chan []byte { return s.ch }
func (s *memorySubscription) Close() error           { s.closer(); return nil }

func (m *Memory) Subscribe(_ context.Context, channel string) (interfaces.Subscription, error) {
	ch := make(chan []byte, 64)
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	closer := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		chans := m.subs[channel]
		for i, c := range chans {
			if c == ch {
				m.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return &memorySubscription{ch: ch, closer: closer}, nil
}

func (m *Memory) Pipeline(ctx context.Context, ops []interfaces.PipelineOp) ([]int64, error) {
	results := make([]int64, len(ops))
	for i, op := range ops {
		switch op.Op {
		case "incr":
			n, _ := m.Incr(ctx, op.Key, 0)
			results[i] = n
		}
	}
	return results, nil
}

func (m *Memory) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }
func (m *Memory) Close() error                 { return nil }

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

var _ interfaces.Broker = (*Memory)(nil)

// Package dataloader implements the delay-batched, deduplicating loader
// (§4.E) that sits between the expression evaluator and the runtime's HTTP/
// gRPC/GraphQL capabilities. Grounded on the teacher's grpcrt.Runtime
// BatchResolveAsync batching-by-depth idea, generalized here into a
// standalone, reusable primitive keyed by an arbitrary comparable Key rather
// than (objectType, field).
package dataloader

import (
	"context"
	"sync"
	"time"

	"github.com/tailcallhq/tailcall-go/internal/eventbus"
	"github.com/tailcallhq/tailcall-go/internal/events"
)

// BatchFunc resolves a batch of keys at once, returning one Value (or error)
// per key in the input slice, in the same order. It is supplied by the IO
// kind: a single-key HTTP or gRPC call issues one upstream request per key,
// a group-by HTTP call builds one upstream request for the whole batch, a
// GraphQL loader concatenates N operations into one list request. gRPC
// group-by loaders do not combine keys into one request.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) []Result[V]

// Result is a per-key outcome from a BatchFunc.
type Result[V any] struct {
	Value V
	Err   error
}

// Loader batches and deduplicates calls keyed by K within a delay window.
type Loader[K comparable, V any] struct {
	delay       time.Duration
	maxBatch    int
	fn          BatchFunc[K, V]

	mu      sync.Mutex
	pending map[K]*future[V]
	order   []K
	timer   *time.Timer
}

type future[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// New constructs a Loader. delay of zero means the window closes on the
// next scheduler tick (still coalescing keys submitted synchronously within
// the same batch of goroutine scheduling); maxBatch of zero means unbounded.
func New[K comparable, V any](delay time.Duration, maxBatch int, fn BatchFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{
		delay:    delay,
		maxBatch: maxBatch,
		fn:       fn,
		pending:  make(map[K]*future[V]),
	}
}

// Load requests key, attaching to any in-flight shared future for the same
// key within the current window, or starting a new one. It blocks until the
// batch containing key has been resolved.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	f, exists := l.pending[key]
	if !exists {
		f = &future[V]{done: make(chan struct{})}
		l.pending[key] = f
		l.order = append(l.order, key)
		if l.maxBatch > 0 && len(l.order) >= l.maxBatch {
			l.flushLocked()
		} else if l.timer == nil {
			l.timer = time.AfterFunc(l.delay, l.flush)
		}
	}
	l.mu.Unlock()

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (l *Loader[K, V]) flush() {
	l.mu.Lock()
	l.flushLocked()
	l.mu.Unlock()
}

// flushLocked must be called with l.mu held. It closes the current window,
// clears pending state so keys arriving during the batch call start a fresh
// window concurrently, and runs the batch function outside the lock.
func (l *Loader[K, V]) flushLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if len(l.order) == 0 {
		return
	}
	keys := l.order
	futures := make([]*future[V], len(keys))
	for i, k := range keys {
		futures[i] = l.pending[k]
	}
	l.order = nil
	l.pending = make(map[K]*future[V])

	go func() {
		ctx := context.Background()
		start := time.Now()
		eventbus.Publish(ctx, events.DataLoaderBatchDispatched{KeyCount: len(keys)})
		results := l.fn(ctx, keys)
		eventbus.Publish(ctx, events.DataLoaderBatchCompleted{KeyCount: len(keys), Duration: time.Since(start)})
		for i, r := range results {
			if i >= len(futures) {
				break
			}
			futures[i].val = r.Value
			futures[i].err = r.Err
			close(futures[i].done)
		}
		// A batch function that returns fewer results than keys (a bug, or a
		// batch-level failure) still must not leave callers blocked forever.
		for i := len(results); i < len(futures); i++ {
			futures[i].err = errShortBatch
			close(futures[i].done)
		}
	}()
}

var errShortBatch = shortBatchError{}

type shortBatchError struct{}

func (shortBatchError) Error() string { return "dataloader: batch function returned fewer results than keys" }

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/port"
)

var (
	ErrQueueClosed = errors.New("sync queue closed")
	ErrQueueFull   = errors.New("sync queue full")
)

const (
	writeTimeout      = 5 * time.Second
	idempotencyPrefix = "owned-change:"
)

// SyncForwarder persists owned changes off the request path. Local state is
// already updated when a change arrives here, so nothing it does is ever
// rolled back into the store.
type SyncForwarder struct {
	repo      port.OwnedRepository
	cache     port.CacheRepository
	outbox    port.OutboxRepository
	publisher port.EventPublisher
	retry     RetryPolicy
	metrics   *SyncMetrics

	mu     sync.RWMutex
	closed bool
	queue  chan domain.OwnedChange
}

type ForwarderOption func(*SyncForwarder)

func WithCache(cache port.CacheRepository) ForwarderOption {
	return func(f *SyncForwarder) { f.cache = cache }
}

func WithOutbox(outbox port.OutboxRepository) ForwarderOption {
	return func(f *SyncForwarder) { f.outbox = outbox }
}

func WithPublisher(publisher port.EventPublisher) ForwarderOption {
	return func(f *SyncForwarder) { f.publisher = publisher }
}

func WithRetryPolicy(p RetryPolicy) ForwarderOption {
	return func(f *SyncForwarder) { f.retry = p }
}

func WithMetrics(m *SyncMetrics) ForwarderOption {
	return func(f *SyncForwarder) { f.metrics = m }
}

func NewSyncForwarder(repo port.OwnedRepository, queueSize int, opts ...ForwarderOption) *SyncForwarder {
	f := &SyncForwarder{
		repo:  repo,
		retry: DefaultRetryPolicy(),
		queue: make(chan domain.OwnedChange, queueSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics == nil {
		f.metrics = NewSyncMetrics(nil)
	}
	return f
}

// Enqueue does not wait for a worker. Changes with cloud sync off are
// dropped. When the queue is full the change is written to the outbox on the
// caller's goroutine, so the call then takes as long as one outbox write.
func (f *SyncForwarder) Enqueue(change domain.OwnedChange) error {
	if !change.EnableCloudSync {
		f.metrics.Dropped.Inc()
		return nil
	}

	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case f.queue <- change:
		f.metrics.Enqueued.Inc()
		f.metrics.QueueDepth.Set(float64(len(f.queue)))
		f.mu.RUnlock()
		return nil
	default:
	}
	f.mu.RUnlock()

	if f.outbox == nil {
		return ErrQueueFull
	}
	return f.spill(context.Background(), change)
}

// Pending is the number of changes waiting for a worker.
func (f *SyncForwarder) Pending() int {
	return len(f.queue)
}

// Run starts workers and blocks until the queue is closed and drained.
func (f *SyncForwarder) Run(ctx context.Context, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < max(workers, 1); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			f.workerLoop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (f *SyncForwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
}

func (f *SyncForwarder) workerLoop(ctx context.Context, id int) {
	for change := range f.queue {
		f.metrics.QueueDepth.Set(float64(len(f.queue)))
		if err := f.Process(ctx, change); err != nil {
			slog.Error("owned change not persisted",
				"worker", id, "set", change.SetNumber, "key", change.Key, "change", change.ID, "error", err)
		}
	}
}

// Process persists one change: dedupe, write with retries, mirror, publish.
// A change that exhausts its retries is kept in the outbox.
func (f *SyncForwarder) Process(ctx context.Context, change domain.OwnedChange) error {
	claimKey := idempotencyPrefix + change.ID
	if f.cache != nil {
		ok, err := f.cache.SetIdempotency(ctx, claimKey)
		if err != nil {
			slog.Warn("idempotency check failed, writing anyway", "change", change.ID, "error", err)
		} else if !ok {
			f.metrics.Duplicates.Inc()
			return nil
		}
	}

	err := f.retry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			f.metrics.Retried.Inc()
		}
		change.Attempt = attempt

		opCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return f.repo.UpsertOwned(opCtx, change)
	})
	if err != nil {
		f.metrics.Failed.Inc()
		change.Status = domain.OwnedChangeStatusFailed

		// the claim must not block a later replay of the same change
		bg := context.WithoutCancel(ctx)
		if f.cache != nil {
			if relErr := f.cache.ReleaseIdempotency(bg, claimKey); relErr != nil {
				slog.Warn("idempotency release failed", "change", change.ID, "error", relErr)
			}
		}
		if f.outbox != nil {
			if spillErr := f.spill(bg, change); spillErr != nil {
				return fmt.Errorf("persist owned change: %w (outbox: %v)", err, spillErr)
			}
		}
		return fmt.Errorf("persist owned change: %w", err)
	}

	change.Status = domain.OwnedChangeStatusSynced
	f.metrics.Persisted.Inc()

	if f.cache != nil {
		if _, err := f.cache.MirrorOwned(ctx, change); err != nil {
			slog.Warn("owned mirror update failed", "set", change.SetNumber, "key", change.Key, "error", err)
		}
	}
	if f.publisher != nil {
		if err := f.publisher.PublishOwnedChanged(ctx, change); err != nil {
			slog.Warn("owned change event not published", "change", change.ID, "error", err)
		}
	}
	return nil
}

// ReplayOutbox persists up to limit outbox changes, oldest first, and
// returns how many made it.
func (f *SyncForwarder) ReplayOutbox(ctx context.Context, limit int) (int, error) {
	if f.outbox == nil {
		return 0, nil
	}

	pending, err := f.outbox.Pending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}

	replayed := 0
	for _, change := range pending {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}
		if err := f.Process(ctx, change); err != nil {
			slog.Warn("outbox change still failing", "change", change.ID, "error", err)
			continue
		}
		if err := f.outbox.MarkDone(ctx, change.ID); err != nil {
			return replayed, fmt.Errorf("mark outbox change %s: %w", change.ID, err)
		}
		replayed++
	}
	return replayed, nil
}

func (f *SyncForwarder) spill(ctx context.Context, change domain.OwnedChange) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := f.outbox.Save(ctx, change); err != nil {
		return fmt.Errorf("save to outbox: %w", err)
	}
	f.metrics.Spilled.Inc()
	return nil
}

// Package executor runs a handler over batches of work items on a bounded
// worker pool, adapting the batch size to upstream error pressure.
//
// # Sizing
//
// The batch size starts at the configured ceiling. A retriable failure of a
// full-size batch halves it (never below 1); a success doubles it again once
// the cooldown has passed since the last change. Every item of a failed batch
// is then retried on its own so one poisoned item cannot hold back the rest.
//
// # Backpressure
//
// At most MaxWorkers batches are in flight. Submitting another blocks until a
// worker frees up, and the first non-retriable error cancels the remaining
// submissions.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainetl/internal/indexing/metrics"
	"github.com/vietddude/chainetl/internal/infra/rpc/routing"
)

// Config holds executor settings.
type Config struct {
	Name              string
	StartingBatchSize int
	MaxWorkers        int
	MaxRetries        int           // single-item attempts after a batch failure (default: 5)
	RetryDelay        time.Duration // fixed delay between single-item attempts (default: 1s)
	Cooldown          time.Duration // minimum time between size changes before growing (default: 2m)

	// IsRetriable decides which errors go through the shrink-and-retry path.
	// Defaults to routing.IsRetriable.
	IsRetriable func(error) bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		StartingBatchSize: 100,
		MaxWorkers:        5,
		MaxRetries:        5,
		RetryDelay:        time.Second,
		Cooldown:          2 * time.Minute,
	}
}

// BatchExecutor is safe for concurrent use by multiple Execute calls.
type BatchExecutor struct {
	cfg     Config
	ceiling int64

	size       atomic.Int64
	lastChange atomic.Int64 // unix nanos of the last size change
	pending    atomic.Int64
	inflight   sync.WaitGroup

	now func() time.Time
	log *slog.Logger
}

// New creates an executor. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config) *BatchExecutor {
	def := DefaultConfig(cfg.Name)
	if cfg.StartingBatchSize <= 0 {
		cfg.StartingBatchSize = def.StartingBatchSize
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.IsRetriable == nil {
		cfg.IsRetriable = routing.IsRetriable
	}

	e := &BatchExecutor{
		cfg:     cfg,
		ceiling: int64(cfg.StartingBatchSize),
		now:     time.Now,
		log:     slog.Default().With("component", "executor", "job", cfg.Name),
	}
	e.size.Store(e.ceiling)
	e.lastChange.Store(e.now().UnixNano())
	metrics.ExecutorBatchSize.WithLabelValues(cfg.Name).Set(float64(e.ceiling))
	return e
}

// BatchSize returns the current batch size.
func (e *BatchExecutor) BatchSize() int {
	return int(e.size.Load())
}

// Execute partitions items into batches of the current size and runs handler
// over them on the worker pool. It returns the first non-recoverable error.
// Batches may complete in any order, so handlers must be independent.
func Execute[T any](
	ctx context.Context,
	e *BatchExecutor,
	items []T,
	handler func(ctx context.Context, batch []T) error,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxWorkers)

	for start := 0; start < len(items); {
		if gctx.Err() != nil {
			break
		}

		end := min(start+e.BatchSize(), len(items))
		batch := items[start:end]
		start = end

		e.pending.Add(1)
		e.inflight.Add(1)
		// Blocks while MaxWorkers batches are in flight.
		g.Go(func() error {
			defer e.inflight.Done()
			defer e.pending.Add(-1)
			return runBatch(gctx, e, batch, handler)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown waits for every in-flight batch and fails if any is still pending
// afterwards.
func (e *BatchExecutor) Shutdown() error {
	e.inflight.Wait()
	if n := e.pending.Load(); n != 0 {
		return fmt.Errorf("executor %s: %d batches still pending after shutdown", e.cfg.Name, n)
	}
	return nil
}

func runBatch[T any](ctx context.Context, e *BatchExecutor, batch []T, handler func(context.Context, []T) error) error {
	err := handler(ctx, batch)
	if err == nil {
		e.onSuccess()
		return nil
	}
	if !e.cfg.IsRetriable(err) {
		return err
	}

	metrics.ExecutorBatchFailures.WithLabelValues(e.cfg.Name).Inc()
	e.onFailure(len(batch))
	e.log.Warn("batch failed, retrying items individually", "size", len(batch), "error", err)

	for _, item := range batch {
		if err := retryItem(ctx, e, item, handler); err != nil {
			return err
		}
	}
	return nil
}

func retryItem[T any](ctx context.Context, e *BatchExecutor, item T, handler func(context.Context, []T) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		metrics.ExecutorItemRetries.WithLabelValues(e.cfg.Name).Inc()

		lastErr = handler(ctx, []T{item})
		if lastErr == nil {
			return nil
		}
		if !e.cfg.IsRetriable(lastErr) {
			return lastErr
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.RetryDelay):
		}
	}
	return fmt.Errorf("item failed after %d attempts: %w", e.cfg.MaxRetries, lastErr)
}

func (e *BatchExecutor) onSuccess() {
	cur := e.size.Load()
	if cur*2 > e.ceiling {
		return
	}
	if e.now().UnixNano()-e.lastChange.Load() < int64(e.cfg.Cooldown) {
		return
	}
	if e.size.CompareAndSwap(cur, cur*2) {
		e.lastChange.Store(e.now().UnixNano())
		metrics.ExecutorBatchSize.WithLabelValues(e.cfg.Name).Set(float64(cur * 2))
		e.log.Info("batch size increased", "size", cur*2)
	}
}

func (e *BatchExecutor) onFailure(batchLen int) {
	cur := e.size.Load()
	if int64(batchLen) != cur || cur <= 1 {
		return
	}
	if e.size.CompareAndSwap(cur, cur/2) {
		e.lastChange.Store(e.now().UnixNano())
		metrics.ExecutorBatchSize.WithLabelValues(e.cfg.Name).Set(float64(cur / 2))
		e.log.Info("batch size decreased", "size", cur/2)
	}
}

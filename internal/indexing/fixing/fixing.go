// Package fixing repairs stored blocks that a chain reorganisation has made
// stale.
//
// At most one repair runs at a time across every process sharing the sink.
// Within a process, callers queue on a channel slot; across processes, the
// sink's FixRecord table holds a single running row and a process that finds
// another owner gives up with storage.ErrFixInProgress.
package fixing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/metrics"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// ErrFixInProgress is returned when another process owns the running repair.
var ErrFixInProgress = storage.ErrFixInProgress

// HashSource returns the canonical hash of each height according to the node.
type HashSource interface {
	BlockHashes(ctx context.Context, numbers []uint64) (map[uint64]string, error)
}

// Deriver re-runs the extraction pipeline over a block range.
type Deriver interface {
	Dispatch(ctx context.Context, rng domain.BlockRange) (map[domain.DataKind][]any, error)
}

// Config holds controller settings.
type Config struct {
	RetryErrors bool          // retry a failed repair instead of returning the error
	RetryDelay  time.Duration // delay between repair attempts (default: 5s)
	MaxRetries  int           // 0 retries forever
}

// Controller detects and repairs reorg damage.
type Controller struct {
	cfg     Config
	node    HashSource
	blocks  storage.BlockRepository
	sink    storage.Sink
	fixes   storage.FixRecordRepository
	deriver Deriver

	slot    chan struct{}
	waiting atomic.Int32

	newID func() string
	log   *slog.Logger
}

// NewController creates a controller.
func NewController(
	cfg Config,
	node HashSource,
	blocks storage.BlockRepository,
	sink storage.Sink,
	fixes storage.FixRecordRepository,
	deriver Deriver,
) *Controller {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Controller{
		cfg:     cfg,
		node:    node,
		blocks:  blocks,
		sink:    sink,
		fixes:   fixes,
		deriver: deriver,
		slot:    make(chan struct{}, 1),
		newID:   uuid.NewString,
		log:     slog.Default().With("component", "fixing"),
	}
}

// Fix repairs the remains blocks ending at start. With RetryErrors set, a
// failed attempt is resumed from its saved progress after RetryDelay.
func (c *Controller) Fix(ctx context.Context, start, remains uint64) (err error) {
	if remains == 0 {
		return nil
	}
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer func() { c.release(ctx, err == nil) }()

	rec := &domain.FixRecord{JobID: c.newID(), StartBlockNumber: start, RemainProcess: remains}
	if err := c.fixes.Claim(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrFixInProgress) {
			c.log.Warn("another process owns the running fix", "start", start, "remains", remains)
		}
		return err
	}
	return c.runWithRetry(ctx, rec)
}

// Resume continues a stored, unfinished record.
func (c *Controller) Resume(ctx context.Context, jobID string) (err error) {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer func() { c.release(ctx, err == nil) }()

	rec, err := c.fixes.ClaimExisting(ctx, jobID)
	if err != nil {
		return err
	}
	return c.runWithRetry(ctx, rec)
}

// Submit records a repair for a later run without starting it.
func (c *Controller) Submit(ctx context.Context, start, remains uint64) (*domain.FixRecord, error) {
	rec := &domain.FixRecord{JobID: c.newID(), StartBlockNumber: start, RemainProcess: remains}
	if err := c.fixes.Submit(ctx, rec); err != nil {
		return nil, err
	}
	c.log.Info("fix submitted", "job_id", rec.JobID, "start", start, "remains", remains)
	return rec, nil
}

// RunPending repairs stored records oldest first until none is left.
func (c *Controller) RunPending(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release(ctx, false)
	return c.drain(ctx)
}

func (c *Controller) acquire(ctx context.Context) error {
	c.waiting.Add(1)
	defer c.waiting.Add(-1)
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release hands the slot to a waiting caller. After a successful run with
// nobody waiting, pending records are drained first.
func (c *Controller) release(ctx context.Context, succeeded bool) {
	if succeeded && c.waiting.Load() == 0 && ctx.Err() == nil {
		if err := c.drain(ctx); err != nil && !errors.Is(err, storage.ErrFixInProgress) {
			c.log.Error("pending fix failed", "error", err)
		}
	}
	<-c.slot
}

func (c *Controller) drain(ctx context.Context) error {
	for c.waiting.Load() == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := c.fixes.OldestPending(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec, err := c.fixes.ClaimExisting(ctx, next.JobID)
		if err != nil {
			return err
		}
		c.log.Info("resuming pending fix", "job_id", rec.JobID, "status_was", next.JobStatus)
		if err := c.runWithRetry(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) runWithRetry(ctx context.Context, rec *domain.FixRecord) error {
	for attempt := 1; ; attempt++ {
		err := c.run(ctx, rec)
		if err == nil || !c.cfg.RetryErrors || ctx.Err() != nil {
			return err
		}
		if c.cfg.MaxRetries > 0 && attempt > c.cfg.MaxRetries {
			return err
		}

		c.log.Warn("fix failed, retrying", "job_id", rec.JobID, "attempt", attempt, "delay", c.cfg.RetryDelay, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(c.cfg.RetryDelay):
		}

		if rec, err = c.fixes.ClaimExisting(ctx, rec.JobID); err != nil {
			return err
		}
	}
}

// run walks the record's window backward. When any stored block in the
// window no longer matches the node, every stored block in it is re-derived
// and replaced; heights that were never stored are skipped.
func (c *Controller) run(ctx context.Context, rec *domain.FixRecord) error {
	log := c.log.With("job_id", rec.JobID)

	window, ok := rec.Window()
	if !ok {
		return c.finish(ctx, rec, rec.LastFixedBlockNumber)
	}

	stored, err := c.blocks.BlockHashes(ctx, window)
	if err != nil {
		return c.interrupt(ctx, rec, fmt.Errorf("stored hashes of %s: %w", window, err))
	}

	damaged := rec.LastFixedBlockNumber != nil
	if !damaged && len(stored) > 0 {
		numbers := make([]uint64, 0, len(stored))
		for n := range stored {
			numbers = append(numbers, n)
		}
		fresh, err := c.node.BlockHashes(ctx, numbers)
		if err != nil {
			return c.interrupt(ctx, rec, fmt.Errorf("node hashes of %s: %w", window, err))
		}
		for n, h := range stored {
			if fresh[n] != h {
				damaged = true
				log.Info("stale block", "block", n, "stored", h, "node", fresh[n])
				break
			}
		}
	}
	if !damaged {
		log.Debug("window intact", "window", window.String())
		return c.finish(ctx, rec, domain.Ptr(window.Start))
	}

	log.Info("repairing", "window", window.String(), "stored", len(stored))
	for n := window.End; ; n-- {
		if _, ok := stored[n]; ok {
			rng := domain.BlockRange{Start: n, End: n}
			records, err := c.deriver.Dispatch(ctx, rng)
			if err == nil {
				err = c.sink.Replace(ctx, rng, records)
			}
			if err != nil {
				return c.interrupt(ctx, rec, fmt.Errorf("block %d: %w", n, err))
			}
			metrics.FixedBlocks.Inc()
		}

		rec.LastFixedBlockNumber = domain.Ptr(n)
		rec.RemainProcess--
		if rec.RemainProcess == 0 || n == window.Start {
			break
		}
		if err := c.fixes.SaveProgress(ctx, rec.JobID, rec.LastFixedBlockNumber, rec.RemainProcess, domain.FixStatusRunning); err != nil {
			return c.interrupt(ctx, rec, err)
		}
	}
	return c.finish(ctx, rec, rec.LastFixedBlockNumber)
}

func (c *Controller) finish(ctx context.Context, rec *domain.FixRecord, last *uint64) error {
	rec.RemainProcess = 0
	rec.JobStatus = domain.FixStatusCompleted
	if err := c.fixes.SaveProgress(ctx, rec.JobID, last, 0, domain.FixStatusCompleted); err != nil {
		return c.interrupt(ctx, rec, err)
	}
	metrics.FixJobs.WithLabelValues(string(domain.FixStatusCompleted)).Inc()
	c.log.Info("fix completed", "job_id", rec.JobID, "start", rec.StartBlockNumber)
	return nil
}

// interrupt marks rec resumable with its saved progress and returns cause.
func (c *Controller) interrupt(ctx context.Context, rec *domain.FixRecord, cause error) error {
	rec.JobStatus = domain.FixStatusInterrupt
	metrics.FixJobs.WithLabelValues(string(domain.FixStatusInterrupt)).Inc()

	err := c.fixes.SaveProgress(context.WithoutCancel(ctx), rec.JobID, rec.LastFixedBlockNumber, rec.RemainProcess, domain.FixStatusInterrupt)
	if err != nil {
		c.log.Error("failed to record interrupt", "job_id", rec.JobID, "error", err)
	}
	return fmt.Errorf("fix %s: %w", rec.JobID, cause)
}

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/fixing"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// SuspectSource yields suspect windows queued by the stream loop.
type SuspectSource interface {
	Pop(ctx context.Context) (domain.SuspectRange, bool, error)
	Push(ctx context.Context, s domain.SuspectRange) error
}

// FixerConfig holds repair loop settings.
type FixerConfig struct {
	PartitionBatchSize uint64
	PollInterval       time.Duration
}

// Fixer turns block ranges, time ranges and queued suspects into fixing
// controller runs.
type Fixer struct {
	cfg        FixerConfig
	controller *fixing.Controller
	blocks     storage.BlockRepository
	queue      SuspectSource
	log        *slog.Logger
}

// NewFixer creates a fixer. queue may be nil.
func NewFixer(cfg FixerConfig, controller *fixing.Controller, blocks storage.BlockRepository, queue SuspectSource) *Fixer {
	if cfg.PartitionBatchSize == 0 {
		cfg.PartitionBatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Fixer{
		cfg:        cfg,
		controller: controller,
		blocks:     blocks,
		queue:      queue,
		log:        slog.Default().With("component", "fixer"),
	}
}

// FixTimeRange resolves [from, to] through stored block timestamps and
// repairs the covered blocks.
func (f *Fixer) FixTimeRange(ctx context.Context, from, to time.Time) error {
	rng, err := f.blocks.RangeByTime(ctx, from, to)
	if errors.Is(err, storage.ErrNotFound) {
		f.log.Info("no stored blocks in time range", "from", from, "to", to)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve time range: %w", err)
	}
	f.log.Info("time range resolved", "from", from, "to", to, "blocks", rng.String())
	return f.FixRange(ctx, rng)
}

// FixRange repairs rng one partition at a time, highest partition first.
func (f *Fixer) FixRange(ctx context.Context, rng domain.BlockRange) error {
	parts := rng.Split(f.cfg.PartitionBatchSize)
	for _, p := range slices.Backward(parts) {
		if err := f.controller.Fix(ctx, p.End, p.Size()); err != nil {
			return fmt.Errorf("fix %s: %w", p, err)
		}
	}
	return nil
}

// Daemon drains stored FixRecords and queued suspects until ctx is done.
func (f *Fixer) Daemon(ctx context.Context) error {
	f.log.Info("fix daemon started", "queue", f.queue != nil, "poll", f.cfg.PollInterval)
	for {
		if err := f.round(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.PollInterval):
		}
	}
}

// round drains stored records, then the queue. Queued windows that overlap
// or touch are merged and repaired highest first.
func (f *Fixer) round(ctx context.Context) error {
	if err := f.controller.RunPending(ctx); err != nil {
		return err
	}
	if f.queue == nil {
		return nil
	}

	var popped []domain.BlockRange
	for {
		s, ok, err := f.queue.Pop(ctx)
		if err != nil {
			f.requeue(ctx, popped)
			return err
		}
		if !ok {
			break
		}
		popped = append(popped, s.Range())
	}
	if len(popped) == 0 {
		return nil
	}

	merged := domain.MergeRanges(popped)
	f.log.Info("suspect windows dequeued", "queued", len(popped), "merged", len(merged))
	for i := len(merged) - 1; i >= 0; i-- {
		r := merged[i]
		if err := f.controller.Fix(ctx, r.End, r.Size()); err != nil {
			// a claimed window survives as an interrupted FixRecord
			if errors.Is(err, fixing.ErrFixInProgress) {
				f.requeue(ctx, merged[:i+1])
			} else {
				f.requeue(ctx, merged[:i])
			}
			return err
		}
	}
	return nil
}

func (f *Fixer) requeue(ctx context.Context, ranges []domain.BlockRange) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range ranges {
		if err := f.queue.Push(ctx, domain.SuspectOf(r)); err != nil {
			f.log.Error("failed to requeue suspect window", "range", r.String(), "error", err)
		}
	}
}

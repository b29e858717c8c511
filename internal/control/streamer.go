package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainetl/internal/core/cursor"
	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/buffer"
	"github.com/vietddude/chainetl/internal/indexing/fixing"
	"github.com/vietddude/chainetl/internal/indexing/metrics"
	"github.com/vietddude/chainetl/internal/indexing/reorg"
	"github.com/vietddude/chainetl/internal/indexing/throttle"
)

// StreamConfig holds stream loop settings.
type StreamConfig struct {
	Mission            string
	StartBlock         uint64 // first block when the mission has no checkpoint
	EndBlock           uint64 // 0 follows the head forever
	PartitionBatchSize uint64 // blocks per dispatch
	Confirmations      uint64 // blocks left behind the head
	PollInterval       time.Duration
}

// Streamer follows the chain: it dispatches the job chain over consecutive
// partitions, hands the records to the buffer service and advances the
// checkpoint as chunks are exported.
type Streamer struct {
	cfg      StreamConfig
	heads    *throttle.HeadCache
	pacer    *throttle.Pacer
	deriver  fixing.Deriver
	buffer   *buffer.Service
	cursors  cursor.Manager
	detector *reorg.Detector
	reorgs   *reorg.Handler

	// tail is the last dispatched block, linking partitions that are not
	// yet exported.
	tail *domain.Block
	log  *slog.Logger
}

// NewStreamer creates a stream loop. detector and reorgs may be nil.
func NewStreamer(
	cfg StreamConfig,
	head throttle.HeadSource,
	deriver fixing.Deriver,
	buf *buffer.Service,
	cursors cursor.Manager,
	detector *reorg.Detector,
	reorgs *reorg.Handler,
) *Streamer {
	if cfg.PartitionBatchSize == 0 {
		cfg.PartitionBatchSize = 100
	}
	tc := throttle.DefaultConfig()
	if cfg.PollInterval > 0 {
		tc.PollInterval = cfg.PollInterval
	}
	tc.MaxSpan = cfg.PartitionBatchSize

	s := &Streamer{
		cfg:      cfg,
		heads:    throttle.NewHeadCache(head, tc.HeadCacheTTL),
		pacer:    throttle.NewPacer(tc),
		deriver:  deriver,
		buffer:   buf,
		cursors:  cursors,
		detector: detector,
		reorgs:   reorgs,
		log:      slog.Default().With("component", "stream", "mission", cfg.Mission),
	}
	buf.OnSuccess = func(ctx context.Context, end uint64) error {
		return cursors.Advance(ctx, cfg.Mission, end)
	}
	buf.OnError = func(rng domain.BlockRange, err error) {
		s.log.Error("export failed", "range", rng.String(), "error", err)
	}
	return s
}

// Buffer exposes the buffer service for health reporting.
func (s *Streamer) Buffer() *buffer.Service {
	return s.buffer
}

// Run streams until ctx is done, EndBlock is exported or an export fails
// with CrashInstantly set. Pending records are flushed on every exit path.
func (s *Streamer) Run(ctx context.Context) error {
	lastSynced := uint64(0)
	if s.cfg.StartBlock > 0 {
		lastSynced = s.cfg.StartBlock - 1
	}
	last, err := s.cursors.Initialize(ctx, s.cfg.Mission, lastSynced)
	if err != nil {
		return err
	}
	s.log.Info("stream starting", "last_synced", last, "end", s.cfg.EndBlock)

	// The buffer outlives the loop so writes made before shutdown are flushed.
	bufCtx, stopBuffer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBuffer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.buffer.Run(bufCtx)
	})
	g.Go(func() error {
		defer stopBuffer()
		return s.loop(gctx, last)
	})
	return g.Wait()
}

func (s *Streamer) loop(ctx context.Context, last uint64) error {
	for {
		if s.cfg.EndBlock > 0 && last >= s.cfg.EndBlock {
			s.log.Info("end block reached", "end", s.cfg.EndBlock)
			return nil
		}

		head, err := s.heads.LatestBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("failed to get chain head", "error", err)
			if !s.sleep(ctx, s.pacer.Interval(0)) {
				return nil
			}
			continue
		}
		metrics.ChainLatestBlock.Set(float64(head))

		rng, backlog, ok := s.pacer.Next(last, head, s.cfg.Confirmations)
		if !ok {
			s.heads.Invalidate()
			if !s.sleep(ctx, s.pacer.Interval(0)) {
				return nil
			}
			continue
		}
		if s.cfg.EndBlock > 0 && rng.End > s.cfg.EndBlock {
			rng.End = s.cfg.EndBlock
		}

		if err := s.process(ctx, rng); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		last = rng.End

		if !s.sleep(ctx, s.pacer.Interval(backlog)) {
			return nil
		}
	}
}

func (s *Streamer) process(ctx context.Context, rng domain.BlockRange) error {
	records, err := s.deriver.Dispatch(ctx, rng)
	if err != nil {
		return fmt.Errorf("stream %s: %w", rng, err)
	}
	s.checkLinkage(ctx, records[domain.KindBlock])

	if err := s.buffer.Write(buffer.Batch{Range: rng, Records: records}); err != nil {
		return err
	}
	s.log.Debug("partition dispatched", "range", rng.String(), "pending_blocks", s.buffer.PendingBlocks())
	return nil
}

// checkLinkage reports a broken parent link. Detection failures are logged
// and never stop the stream.
func (s *Streamer) checkLinkage(ctx context.Context, recs []any) {
	blocks := make([]domain.Block, 0, len(recs)+1)
	if s.tail != nil {
		blocks = append(blocks, *s.tail)
	}
	for _, r := range recs {
		if b, ok := r.(domain.Block); ok {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return
	}
	tail := blocks[len(blocks)-1]
	for _, b := range blocks {
		if b.Number > tail.Number {
			tail = b
		}
	}
	s.tail = &tail

	if s.detector == nil || s.reorgs == nil {
		return
	}
	suspect, err := s.detector.Check(ctx, blocks)
	if err != nil {
		s.log.Warn("reorg check failed", "error", err)
		return
	}
	if suspect == nil {
		return
	}
	if err := s.reorgs.Handle(ctx, *suspect); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("failed to queue reorg repair", "error", err)
	}
}

func (s *Streamer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

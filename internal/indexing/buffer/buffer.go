// Package buffer accumulates dispatched block ranges and exports them to the
// sink in size- or time-bounded chunks, advancing the sync checkpoint only
// after a chunk and every chunk before it have been written.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/metrics"
)

// ErrCrashed is returned by Write after an export failed with CrashInstantly
// set.
var ErrCrashed = errors.New("buffer: service crashed")

// Sink writes one chunk of records covering rng.
type Sink interface {
	Write(ctx context.Context, rng domain.BlockRange, records map[domain.DataKind][]any) error
}

// Config holds buffer settings.
type Config struct {
	BlockSize      uint64        // flush once this many blocks are pending (default: 100)
	Linger         time.Duration // flush whatever is pending after this long (default: 60s)
	FlushInterval  time.Duration // how often thresholds are checked (default: 100ms)
	ExportWorkers  int           // concurrent chunk exports (default: 2)
	CrashInstantly bool          // stop the service on the first export failure
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BlockSize:      100,
		Linger:         time.Minute,
		FlushInterval:  100 * time.Millisecond,
		ExportWorkers:  2,
		CrashInstantly: true,
	}
}

// Batch is the output of one dispatched block range.
type Batch struct {
	Range   domain.BlockRange
	Records map[domain.DataKind][]any
}

// Service is the buffered exporter. Write may be called concurrently with Run.
type Service struct {
	cfg  Config
	sink Sink

	// OnSuccess is called with the end block of every exported chunk, in
	// chunk order.
	OnSuccess func(ctx context.Context, end uint64) error
	// OnError is called for every failed chunk.
	OnError func(rng domain.BlockRange, err error)

	mu            sync.Mutex
	pending       []Batch
	pendingBlocks uint64
	lastFlush     time.Time

	exports  errgroup.Group
	seq      uint64
	nextDone uint64
	done     map[uint64]*chunk

	crashOnce sync.Once
	crashed   chan struct{}
	crashErr  error

	now func() time.Time
	log *slog.Logger
}

type chunk struct {
	seq     uint64
	rng     domain.BlockRange
	records map[domain.DataKind][]any
	blocks  uint64
	ok      bool
}

// New creates a service. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config, sink Sink) *Service {
	def := DefaultConfig()
	if cfg.BlockSize == 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.Linger <= 0 {
		cfg.Linger = def.Linger
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.ExportWorkers <= 0 {
		cfg.ExportWorkers = def.ExportWorkers
	}

	s := &Service{
		cfg:     cfg,
		sink:    sink,
		done:    make(map[uint64]*chunk),
		crashed: make(chan struct{}),
		now:     time.Now,
		log:     slog.Default().With("component", "buffer"),
	}
	s.lastFlush = s.now()
	s.exports.SetLimit(cfg.ExportWorkers)
	return s
}

// Write queues the records of one block range.
func (s *Service) Write(b Batch) error {
	select {
	case <-s.crashed:
		return fmt.Errorf("%w: %w", ErrCrashed, s.crashErr)
	default:
	}

	s.mu.Lock()
	s.pending = append(s.pending, b)
	s.pendingBlocks += b.Range.Size()
	metrics.BufferPendingBlocks.Set(float64(s.pendingBlocks))
	s.mu.Unlock()
	return nil
}

// PendingBlocks returns the number of blocks not yet handed to an exporter.
func (s *Service) PendingBlocks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingBlocks
}

// Run checks the flush thresholds until ctx is done, then flushes whatever
// is pending and waits for every export. It returns the crash error when
// CrashInstantly stopped the service.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	// in-flight exports must survive the shutdown signal
	exportCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-s.crashed:
			_ = s.exports.Wait()
			return s.crashErr
		case <-ctx.Done():
			return s.Close(exportCtx)
		case <-ticker.C:
			s.flush(exportCtx, false)
		}
	}
}

// Close flushes everything pending and waits for all exports.
func (s *Service) Close(ctx context.Context) error {
	s.log.Info("final flush", "pending_blocks", s.PendingBlocks())
	s.flush(ctx, true)
	_ = s.exports.Wait()

	select {
	case <-s.crashed:
		return s.crashErr
	default:
		return nil
	}
}

// flush cuts full chunks of BlockSize blocks, plus the remainder when the
// linger time has passed or force is set, and hands them to the export pool.
func (s *Service) flush(ctx context.Context, force bool) {
	for _, c := range s.cut(force) {
		s.exports.Go(func() error {
			s.export(ctx, c)
			return nil
		})
	}
}

func (s *Service) cut(force bool) []*chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	lingered := s.now().Sub(s.lastFlush) >= s.cfg.Linger
	var out []*chunk
	for len(s.pending) > 0 {
		n, blocks := 0, uint64(0)
		for n < len(s.pending) && blocks < s.cfg.BlockSize {
			blocks += s.pending[n].Range.Size()
			n++
		}
		if blocks < s.cfg.BlockSize && !force && !lingered {
			break
		}
		out = append(out, s.newChunk(s.pending[:n], blocks))
		s.pending = s.pending[n:]
		s.pendingBlocks -= blocks
	}
	if len(out) > 0 || lingered {
		s.lastFlush = s.now()
	}
	metrics.BufferPendingBlocks.Set(float64(s.pendingBlocks))
	return out
}

func (s *Service) newChunk(batches []Batch, blocks uint64) *chunk {
	c := &chunk{
		seq:     s.seq,
		rng:     batches[0].Range,
		records: make(map[domain.DataKind][]any),
		blocks:  blocks,
	}
	s.seq++
	for _, b := range batches {
		c.rng = c.rng.Merge(b.Range)
		for kind, recs := range b.Records {
			c.records[kind] = append(c.records[kind], recs...)
		}
	}
	return c
}

func (s *Service) export(ctx context.Context, c *chunk) {
	start := s.now()
	err := s.sink.Write(ctx, c.rng, c.records)
	metrics.BufferFlushDuration.Observe(s.now().Sub(start).Seconds())

	if err != nil {
		metrics.BufferFlushes.WithLabelValues("error").Inc()
		s.log.Error("export failed", "range", c.rng.String(), "error", err)
		if s.OnError != nil {
			s.OnError(c.rng, err)
		}
		if s.cfg.CrashInstantly {
			s.crash(fmt.Errorf("export %s: %w", c.rng, err))
		}
	} else {
		metrics.BufferFlushes.WithLabelValues("success").Inc()
		c.ok = true
	}
	s.complete(ctx, c)
}

// complete releases success callbacks in chunk order. Failed chunks are
// skipped, and nothing is released after a crash.
func (s *Service) complete(ctx context.Context, c *chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done[c.seq] = c
	for {
		next, ok := s.done[s.nextDone]
		if !ok {
			return
		}
		delete(s.done, s.nextDone)
		s.nextDone++

		if !next.ok || s.OnSuccess == nil {
			continue
		}
		select {
		case <-s.crashed:
			continue
		default:
		}
		if err := s.OnSuccess(ctx, next.rng.End); err != nil {
			s.log.Error("success callback failed", "end_block", next.rng.End, "error", err)
			if s.OnError != nil {
				s.OnError(next.rng, err)
			}
			if s.cfg.CrashInstantly {
				s.crash(fmt.Errorf("checkpoint %d: %w", next.rng.End, err))
			}
		}
	}
}

func (s *Service) crash(err error) {
	s.crashOnce.Do(func() {
		s.crashErr = err
		close(s.crashed)
	})
}

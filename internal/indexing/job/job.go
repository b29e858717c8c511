// Package job defines the extraction pipeline stage: a unit that reads some
// data kinds from the per-run Buffer, fetches and transforms, and hands
// exactly its declared outputs to an Exporter.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/metrics"
)

// Job is one pipeline stage.
type Job interface {
	Name() string
	// DependencyTypes are the kinds read from the buffer.
	DependencyTypes() []domain.DataKind
	// OutputTypes are the kinds written to the buffer and exported.
	OutputTypes() []domain.DataKind
	// Collect performs network I/O.
	Collect(ctx context.Context, buf *Buffer) error
	// Process is pure transformation over buffer contents.
	Process(ctx context.Context, buf *Buffer) error
	// Close releases resources. It runs on every exit path.
	Close() error
}

// Exporter receives the finished records of one kind.
type Exporter interface {
	Export(ctx context.Context, rng domain.BlockRange, kind domain.DataKind, records []any) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, rng domain.BlockRange, kind domain.DataKind, records []any) error

func (f ExporterFunc) Export(ctx context.Context, rng domain.BlockRange, kind domain.DataKind, records []any) error {
	return f(ctx, rng, kind, records)
}

// State is the lifecycle position of one job run.
type State int

const (
	StateCreated State = iota
	StateCollecting
	StateProcessing
	StateExporting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCollecting:
		return "collecting"
	case StateProcessing:
		return "processing"
	case StateExporting:
		return "exporting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Runner drives a job through its phases.
type Runner struct {
	exporter Exporter

	// OnTransition, if set, observes every state change.
	OnTransition func(job string, s State)

	log *slog.Logger
}

// NewRunner creates a runner exporting through exp.
func NewRunner(exp Exporter) *Runner {
	return &Runner{
		exporter: exp,
		log:      slog.Default().With("component", "job"),
	}
}

// Run executes collect, process and export in order. Output kinds the job
// does not also depend on are cleared from buf first so a rerun never sees
// stale records. Close is always called; its error is joined with the run
// error.
func (r *Runner) Run(ctx context.Context, j Job, buf *Buffer) (err error) {
	name := j.Name()
	r.transition(name, StateCreated)

	defer func() {
		if cerr := j.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("job %s: close: %w", name, cerr))
		}
		if err != nil {
			metrics.JobFailures.WithLabelValues(name).Inc()
			r.transition(name, StateFailed)
			return
		}
		r.transition(name, StateDone)
	}()

	buf.Clear(ownedKinds(j)...)

	if err := r.phase(ctx, name, StateCollecting, func() error { return j.Collect(ctx, buf) }); err != nil {
		return err
	}
	if err := r.phase(ctx, name, StateProcessing, func() error { return j.Process(ctx, buf) }); err != nil {
		return err
	}
	return r.phase(ctx, name, StateExporting, func() error { return r.export(ctx, j, buf) })
}

func (r *Runner) phase(ctx context.Context, name string, s State, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.transition(name, s)

	start := time.Now()
	err := fn()
	metrics.JobDuration.WithLabelValues(name, s.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("job %s: %s: %w", name, s, err)
	}
	return nil
}

func (r *Runner) export(ctx context.Context, j Job, buf *Buffer) error {
	if r.exporter == nil {
		return nil
	}
	for _, kind := range j.OutputTypes() {
		records := buf.Records(kind)
		if err := r.exporter.Export(ctx, buf.Range(), kind, records); err != nil {
			return fmt.Errorf("export %s: %w", kind, err)
		}
	}
	return nil
}

// ownedKinds are the outputs a job creates from scratch. A kind that is both
// read and written is refined in place.
func ownedKinds(j Job) []domain.DataKind {
	deps := make(map[domain.DataKind]bool)
	for _, k := range j.DependencyTypes() {
		deps[k] = true
	}
	var out []domain.DataKind
	for _, k := range j.OutputTypes() {
		if !deps[k] {
			out = append(out, k)
		}
	}
	return out
}

func (r *Runner) transition(name string, s State) {
	r.log.Debug("job state", "job", name, "state", s)
	if r.OnTransition != nil {
		r.OnTransition(name, s)
	}
}

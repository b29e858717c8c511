// Package dispatcher runs the extraction jobs of one block range in a fixed,
// validated order over a shared per-run buffer.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/job"
)

// ErrInvalidOrder is returned when a job depends on a kind no earlier job
// produces.
var ErrInvalidOrder = errors.New("dispatcher: invalid job order")

// Dispatcher is safe for concurrent Dispatch calls as long as the jobs are.
type Dispatcher struct {
	jobs []job.Job
	log  *slog.Logger
}

// New validates the job order and creates a dispatcher.
func New(jobs ...job.Job) (*Dispatcher, error) {
	if err := Validate(jobs); err != nil {
		return nil, err
	}
	return &Dispatcher{
		jobs: jobs,
		log:  slog.Default().With("component", "dispatcher"),
	}, nil
}

// Validate checks that every dependency of every job is produced by a job
// that runs before it.
func Validate(jobs []job.Job) error {
	if len(jobs) == 0 {
		return fmt.Errorf("%w: no jobs", ErrInvalidOrder)
	}
	produced := make(map[domain.DataKind]string)
	seen := make(map[string]bool)
	for _, j := range jobs {
		if seen[j.Name()] {
			return fmt.Errorf("%w: job %s listed twice", ErrInvalidOrder, j.Name())
		}
		seen[j.Name()] = true

		for _, dep := range j.DependencyTypes() {
			if _, ok := produced[dep]; !ok {
				return fmt.Errorf("%w: %s needs %s before any job produces it", ErrInvalidOrder, j.Name(), dep)
			}
		}
		for _, out := range j.OutputTypes() {
			if _, ok := produced[out]; !ok {
				produced[out] = j.Name()
			}
		}
	}
	return nil
}

// Names returns the job names in run order.
func (d *Dispatcher) Names() []string {
	out := make([]string, len(d.jobs))
	for i, j := range d.jobs {
		out[i] = j.Name()
	}
	return out
}

// OutputTypes returns every kind some job exports, in first-produced order.
func (d *Dispatcher) OutputTypes() []domain.DataKind {
	seen := make(map[domain.DataKind]bool)
	var out []domain.DataKind
	for _, j := range d.jobs {
		for _, k := range j.OutputTypes() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Dispatch runs every job over rng and returns the exported records keyed by
// kind. Jobs run strictly one after another; the first failure aborts the
// range.
func (d *Dispatcher) Dispatch(ctx context.Context, rng domain.BlockRange) (map[domain.DataKind][]any, error) {
	start := time.Now()
	buf := job.NewBuffer(rng)
	col := NewCollector()
	runner := job.NewRunner(col)

	for _, j := range d.jobs {
		if err := runner.Run(ctx, j, buf); err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", rng, err)
		}
	}

	out := col.Records()
	d.log.Debug("range dispatched",
		"range", rng.String(),
		"blocks", len(out[domain.KindBlock]),
		"transactions", len(out[domain.KindTransaction]),
		"duration", time.Since(start),
	)
	return out, nil
}

// Collector is an Exporter that keeps the latest export of every kind. A job
// that refines a kind produced earlier replaces the earlier records.
type Collector struct {
	mu      sync.Mutex
	records map[domain.DataKind][]any
}

func NewCollector() *Collector {
	return &Collector{records: make(map[domain.DataKind][]any)}
}

func (c *Collector) Export(_ context.Context, _ domain.BlockRange, kind domain.DataKind, records []any) error {
	c.mu.Lock()
	c.records[kind] = records
	c.mu.Unlock()
	return nil
}

// Records returns a snapshot of everything collected so far.
func (c *Collector) Records() map[domain.DataKind][]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.DataKind][]any, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}

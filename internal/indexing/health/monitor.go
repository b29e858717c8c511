package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// HeadSource reports the chain tip.
type HeadSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// LagSource reports how far a mission trails the tip.
type LagSource interface {
	Get(ctx context.Context, mission string) (uint64, error)
}

// BacklogSource reports blocks accepted but not yet exported.
type BacklogSource interface {
	PendingBlocks() uint64
}

// FixSource reports repairs waiting to run.
type FixSource interface {
	OldestPending(ctx context.Context) (*domain.FixRecord, error)
}

// Monitor aggregates health status from the pipeline components.
type Monitor struct {
	thresholds Thresholds
	missions   []string
	head       HeadSource
	cursors    LagSource
	backlog    BacklogSource
	fixes      FixSource
	now        func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport map[string]MissionHealth
}

// NewMonitor creates a new health monitor. backlog and fixes may be nil.
func NewMonitor(
	thresholds Thresholds,
	missions []string,
	head HeadSource,
	cursors LagSource,
	backlog BacklogSource,
	fixes FixSource,
) *Monitor {
	return &Monitor{
		thresholds: thresholds.withDefaults(),
		missions:   missions,
		head:       head,
		cursors:    cursors,
		backlog:    backlog,
		fixes:      fixes,
		now:        time.Now,
		lastReport: make(map[string]MissionHealth),
	}
}

// CheckHealth reports every mission. Results are cached to avoid hitting
// the node on every health check.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]MissionHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().Sub(m.lastCheck) < m.thresholds.CacheFor && len(m.lastReport) > 0 {
		return m.lastReport
	}

	head, headErr := m.head.LatestBlock(ctx)

	var pendingFix string
	if m.fixes != nil {
		if rec, err := m.fixes.OldestPending(ctx); err == nil {
			pendingFix = rec.JobID
		} else if !errors.Is(err, storage.ErrNotFound) {
			pendingFix = "unknown"
		}
	}

	report := make(map[string]MissionHealth, len(m.missions))
	for _, mission := range m.missions {
		h := MissionHealth{Mission: mission, Status: StatusHealthy, ChainHead: head, PendingFix: pendingFix}
		if m.backlog != nil {
			h.PendingBlocks = m.backlog.PendingBlocks()
		}

		last, err := m.cursors.Get(ctx, mission)
		switch {
		case headErr != nil:
			h.Status = StatusDegraded
			h.Error = headErr.Error()
		case err != nil:
			h.Status = StatusDegraded
			h.Error = err.Error()
		default:
			h.LastSynced = last
			if head > last {
				h.BlockLag = head - last
			}
		}

		t := m.thresholds
		if h.BlockLag > t.LagCritical || h.PendingBlocks > t.PendingCritical {
			h.Status = StatusCritical
		} else if h.BlockLag > t.LagDegraded || h.PendingFix != "" {
			h.Status = StatusDegraded
		}

		report[mission] = h
	}

	m.lastCheck = m.now()
	m.lastReport = report
	return report
}

// Overall returns the worst status in report.
func Overall(report map[string]MissionHealth) SystemStatus {
	status := StatusHealthy
	for _, h := range report {
		if h.Status == StatusCritical {
			return StatusCritical
		}
		if h.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

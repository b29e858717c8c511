package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/chainetl/internal/indexing/metrics"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// ErrCursorNotFound is returned when a mission has no checkpoint.
var ErrCursorNotFound = errors.New("cursor not found")

// Manager handles checkpoint operations.
type Manager interface {
	// Get returns the last synced block of a mission.
	Get(ctx context.Context, mission string) (uint64, error)

	// Initialize returns the existing checkpoint, or stores lastSynced when
	// the mission has none.
	Initialize(ctx context.Context, mission string, lastSynced uint64) (uint64, error)

	// Advance moves the checkpoint forward. A lower block is ignored.
	Advance(ctx context.Context, mission string, block uint64) error

	// Reset moves the checkpoint to block, backwards if needed.
	Reset(ctx context.Context, mission string, block uint64) error

	// GetLag returns blocks behind the chain tip.
	GetLag(ctx context.Context, mission string, latestBlock uint64) (int64, error)

	// GetMetrics returns throughput metrics for a mission.
	GetMetrics(mission string) Metrics
}

// DefaultManager implements Manager.
type DefaultManager struct {
	repo             storage.CursorRepository
	mu               sync.RWMutex
	blockTimeHistory map[string]*MetricsCollector
}

// Get returns the last synced block of a mission.
func (m *DefaultManager) Get(ctx context.Context, mission string) (uint64, error) {
	rec, err := m.repo.Get(ctx, mission)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrCursorNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
	return rec.LastBlockNumber, nil
}

// Initialize returns the stored checkpoint, creating it at lastSynced if absent.
func (m *DefaultManager) Initialize(ctx context.Context, mission string, lastSynced uint64) (uint64, error) {
	last, err := m.Get(ctx, mission)
	if errors.Is(err, ErrCursorNotFound) {
		if err := m.repo.Reset(ctx, mission, lastSynced); err != nil {
			return 0, fmt.Errorf("failed to save cursor: %w", err)
		}
		last = lastSynced
	} else if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.collector(mission)
	m.mu.Unlock()

	metrics.LastSyncedBlock.WithLabelValues(mission).Set(float64(last))
	return last, nil
}

// Advance moves the checkpoint forward after a chunk is exported.
func (m *DefaultManager) Advance(ctx context.Context, mission string, block uint64) error {
	if err := m.repo.Advance(ctx, mission, block); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	m.mu.Lock()
	m.collector(mission).RecordBlock(block, time.Now())
	m.mu.Unlock()

	last, err := m.Get(ctx, mission)
	if err != nil {
		return err
	}
	metrics.LastSyncedBlock.WithLabelValues(mission).Set(float64(last))
	return nil
}

// Reset moves the checkpoint unconditionally.
func (m *DefaultManager) Reset(ctx context.Context, mission string, block uint64) error {
	if err := m.repo.Reset(ctx, mission, block); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	m.mu.Lock()
	m.collector(mission).Reset()
	m.mu.Unlock()

	metrics.LastSyncedBlock.WithLabelValues(mission).Set(float64(block))
	return nil
}

// GetLag returns how many blocks the mission is behind latestBlock.
func (m *DefaultManager) GetLag(ctx context.Context, mission string, latestBlock uint64) (int64, error) {
	last, err := m.Get(ctx, mission)
	if err != nil {
		return 0, err
	}
	return int64(latestBlock) - int64(last), nil
}

// GetMetrics returns throughput metrics for a mission.
func (m *DefaultManager) GetMetrics(mission string) Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.blockTimeHistory[mission]; ok {
		return c.GetMetrics()
	}
	return Metrics{}
}

// collector returns the mission's collector, creating it on first use.
// Callers hold m.mu.
func (m *DefaultManager) collector(mission string) *MetricsCollector {
	if c, ok := m.blockTimeHistory[mission]; ok {
		return c
	}
	c := NewMetricsCollector(100)
	m.blockTimeHistory[mission] = c
	return c
}

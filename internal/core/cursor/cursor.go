// Package cursor tracks the last synced block of each mission.
//
// A mission is one stream of work over the chain, for example "stream". Its
// checkpoint only moves forward: the buffer service reports the end of each
// exported chunk in order, and a lower report is ignored.
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo)
//
//	// Resume from the checkpoint, or start after block 999
//	last, _ := manager.Initialize(ctx, "stream", 999)
//
//	// After a chunk is exported
//	manager.Advance(ctx, "stream", 1100)
//	manager.Advance(ctx, "stream", 1050) // ignored
//
// # Package Structure
//
//   - manager.go - Manager implementation over storage.CursorRepository
//   - metrics.go - Throughput metrics (blocks/sec)
package cursor

import (
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// NewManager creates a new cursor manager with the given repository.
func NewManager(repo storage.CursorRepository) *DefaultManager {
	return &DefaultManager{
		repo:             repo,
		blockTimeHistory: make(map[string]*MetricsCollector),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize: windowSize,
		blockTimes: make([]blockRecord, 0, windowSize),
	}
}

// Package reorg spots chain reorganisations while streaming.
//
// # Design: RPC-Minimal Detection
//
// Detection uses parent hash verification (0 extra RPC calls):
//   - When block N is extracted, its parent_hash is already available
//   - Compare with the hash of block N-1, from the same batch or the sink
//   - If mismatch, the blocks below N are suspect
//
// Nothing is rolled back here. A suspect window is handed to a Queue and the
// fixing controller decides, by comparing stored hashes against the node,
// which blocks to re-derive.
//
// # Usage
//
//	detector := reorg.NewDetector(reorg.Config{Depth: 64}, blockRepo)
//	handler := reorg.NewHandler(queue)
//
//	suspect, _ := detector.Check(ctx, blocks)
//	if suspect != nil {
//	    handler.Handle(ctx, *suspect)
//	}
package reorg

import (
	"context"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// Config holds configuration for reorg detection.
type Config struct {
	Depth uint64 // Blocks below a broken link handed to the fixer (default: 100)
}

// Queue accepts suspect windows for repair.
type Queue interface {
	Push(ctx context.Context, s domain.SuspectRange) error
}

// NewDetector creates a new reorg detector.
func NewDetector(config Config, blockRepo storage.BlockRepository) *Detector {
	if config.Depth == 0 {
		config.Depth = 100
	}
	return &Detector{
		config:    config,
		blockRepo: blockRepo,
	}
}

// NewHandler creates a new reorg handler.
func NewHandler(queue Queue) *Handler {
	return &Handler{queue: queue}
}

package reorg

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// Detector checks for chain reorganizations using parent hash verification.
type Detector struct {
	config    Config
	blockRepo storage.BlockRepository
}

// Check verifies that every block links to its predecessor and returns the
// window below the lowest broken link, or nil when the chain is intact.
// A predecessor that is neither in blocks nor stored is not evidence of a
// reorg.
func (d *Detector) Check(ctx context.Context, blocks []domain.Block) (*domain.SuspectRange, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	sorted := slices.SortedFunc(slices.Values(blocks), func(a, b domain.Block) int {
		return cmp.Compare(a.Number, b.Number)
	})

	byNumber := make(map[uint64]string, len(sorted))
	for _, b := range sorted {
		byNumber[b.Number] = b.Hash
	}

	for _, b := range sorted {
		if b.Number == 0 {
			continue
		}
		prev := b.Number - 1
		parent, ok := byNumber[prev]
		if !ok {
			stored, err := d.blockRepo.GetByNumber(ctx, prev)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to get block %d: %w", prev, err)
			}
			parent = stored.Hash
		}
		if parent != b.ParentHash {
			return d.window(prev), nil
		}
	}
	return nil, nil
}

func (d *Detector) window(top uint64) *domain.SuspectRange {
	return &domain.SuspectRange{Start: top, Remains: min(d.config.Depth, top+1)}
}

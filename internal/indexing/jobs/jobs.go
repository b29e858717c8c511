// Package jobs holds the concrete extraction stages run by the dispatcher.
package jobs

import (
	"log/slog"
	"strings"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// base carries what every network-bound job needs.
type base struct {
	name string
	node chain.Node
	exec *executor.BatchExecutor
	log  *slog.Logger
}

func newBase(name string, node chain.Node, exec *executor.BatchExecutor) base {
	return base{
		name: name,
		node: node,
		exec: exec,
		log:  slog.Default().With("component", "jobs", "job", name),
	}
}

func (b *base) Name() string { return b.name }

// Close waits for any batch still owned by the executor.
func (b *base) Close() error {
	if b.exec == nil {
		return nil
	}
	return b.exec.Shutdown()
}

func kinds(k ...domain.DataKind) []domain.DataKind { return k }

func blocksByNumber(buf *job.Buffer) ([]domain.Block, map[uint64]domain.Block, error) {
	blocks, err := job.Get[domain.Block](buf, domain.KindBlock)
	if err != nil {
		return nil, nil, err
	}
	idx := make(map[uint64]domain.Block, len(blocks))
	for _, b := range blocks {
		idx[b.Number] = b
	}
	return blocks, idx, nil
}

func blockKey(b domain.Block) uint64 { return b.Number }

func isZeroAddress(addr string) bool {
	return addr == "" || strings.EqualFold(addr, zeroAddress)
}

package jobs

import (
	"cmp"
	"context"
	"slices"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

// ExportBlocksJob fetches every block of the range with its transactions.
type ExportBlocksJob struct {
	base
}

func NewExportBlocksJob(node chain.Node, exec *executor.BatchExecutor) *ExportBlocksJob {
	return &ExportBlocksJob{base: newBase("export_blocks", node, exec)}
}

func (j *ExportBlocksJob) DependencyTypes() []domain.DataKind { return nil }

func (j *ExportBlocksJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindTransaction)
}

func (j *ExportBlocksJob) Collect(ctx context.Context, buf *job.Buffer) error {
	return executor.Execute(ctx, j.exec, buf.Range().Numbers(), func(ctx context.Context, batch []uint64) error {
		bundles, err := j.node.Blocks(ctx, batch)
		if err != nil {
			return err
		}
		for _, b := range bundles {
			buf.Append(domain.KindBlock, *b.Block)
			for _, tx := range b.Transactions {
				buf.Append(domain.KindTransaction, *tx)
			}
		}
		return nil
	})
}

func (j *ExportBlocksJob) Process(_ context.Context, buf *job.Buffer) error {
	blocks, err := job.Get[domain.Block](buf, domain.KindBlock)
	if err != nil {
		return err
	}
	txs, err := job.Get[domain.Transaction](buf, domain.KindTransaction)
	if err != nil {
		return err
	}

	slices.SortFunc(blocks, func(a, b domain.Block) int { return cmp.Compare(a.Number, b.Number) })
	slices.SortFunc(txs, compareTx)

	job.Put(buf, domain.KindBlock, blocks)
	job.Put(buf, domain.KindTransaction, txs)
	return nil
}

func compareTx(a, b domain.Transaction) int {
	if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
		return c
	}
	return cmp.Compare(a.TransactionIndex, b.TransactionIndex)
}

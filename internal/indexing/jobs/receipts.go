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

// ExportReceiptsJob fetches the receipt of every transaction, attaches the
// receipt outcome to the transaction and block context to every log.
type ExportReceiptsJob struct {
	base
}

func NewExportReceiptsJob(node chain.Node, exec *executor.BatchExecutor) *ExportReceiptsJob {
	return &ExportReceiptsJob{base: newBase("export_receipts", node, exec)}
}

func (j *ExportReceiptsJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindTransaction)
}

func (j *ExportReceiptsJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindTransaction, domain.KindReceipt, domain.KindLog)
}

func (j *ExportReceiptsJob) Collect(ctx context.Context, buf *job.Buffer) error {
	txs, err := job.Get[domain.Transaction](buf, domain.KindTransaction)
	if err != nil {
		return err
	}
	hashes := make([]string, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash
	}

	return executor.Execute(ctx, j.exec, hashes, func(ctx context.Context, batch []string) error {
		bundles, err := j.node.Receipts(ctx, batch)
		if err != nil {
			return err
		}
		for _, r := range bundles {
			buf.Append(domain.KindReceipt, *r.Receipt)
			for _, l := range r.Logs {
				buf.Append(domain.KindLog, *l)
			}
		}
		return nil
	})
}

func (j *ExportReceiptsJob) Process(_ context.Context, buf *job.Buffer) error {
	blocks, _, err := blocksByNumber(buf)
	if err != nil {
		return err
	}
	txs, err := job.Get[domain.Transaction](buf, domain.KindTransaction)
	if err != nil {
		return err
	}
	receipts, err := job.Get[domain.Receipt](buf, domain.KindReceipt)
	if err != nil {
		return err
	}
	logs, err := job.Get[domain.Log](buf, domain.KindLog)
	if err != nil {
		return err
	}

	txs, err = job.Enrich(txs, receipts,
		func(t domain.Transaction) string { return t.Hash },
		func(r domain.Receipt) string { return r.TransactionHash },
		func(t domain.Transaction, r domain.Receipt) domain.Transaction {
			t.ReceiptGasUsed = r.GasUsed
			t.ReceiptStatus = r.Status
			t.ReceiptContractAddress = r.ContractAddress
			return t
		})
	if err != nil {
		return err
	}

	logs, err = job.Enrich(logs, blocks,
		func(l domain.Log) uint64 { return l.BlockNumber },
		blockKey,
		func(l domain.Log, b domain.Block) domain.Log {
			l.BlockHash = b.Hash
			l.BlockTimestamp = b.Timestamp
			return l
		})
	if err != nil {
		return err
	}

	slices.SortFunc(txs, compareTx)
	slices.SortFunc(receipts, func(a, b domain.Receipt) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.TransactionIndex, b.TransactionIndex)
	})
	slices.SortFunc(logs, func(a, b domain.Log) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.LogIndex, b.LogIndex)
	})

	job.Put(buf, domain.KindTransaction, txs)
	job.Put(buf, domain.KindReceipt, receipts)
	job.Put(buf, domain.KindLog, logs)
	return nil
}

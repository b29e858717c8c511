package jobs

import (
	"context"
	"fmt"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/bridge"
	"github.com/vietddude/chainetl/internal/indexing/job"
)

// BridgeJob runs the configured bridge decoders over every transaction of
// the range. It is pure: everything it needs is already in the buffer.
type BridgeJob struct {
	decoders []bridge.Decoder
}

func NewBridgeJob(decoders ...bridge.Decoder) *BridgeJob {
	return &BridgeJob{decoders: decoders}
}

func (j *BridgeJob) Name() string { return "extract_bridge" }

func (j *BridgeJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindTransaction, domain.KindLog)
}

func (j *BridgeJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindBridgeTransaction, domain.KindStateBatch, domain.KindDABatch)
}

func (j *BridgeJob) Collect(context.Context, *job.Buffer) error { return nil }

func (j *BridgeJob) Process(_ context.Context, buf *job.Buffer) error {
	_, byNumber, err := blocksByNumber(buf)
	if err != nil {
		return err
	}
	txs, err := job.Get[domain.Transaction](buf, domain.KindTransaction)
	if err != nil {
		return err
	}
	logs, err := job.Get[domain.Log](buf, domain.KindLog)
	if err != nil {
		return err
	}

	byTx := make(map[string][]domain.Log)
	for _, l := range logs {
		byTx[l.TransactionHash] = append(byTx[l.TransactionHash], l)
	}

	var res bridge.Result
	for _, tx := range txs {
		in := &bridge.Tx{Block: byNumber[tx.BlockNumber], Transaction: tx, Logs: byTx[tx.Hash]}
		for _, d := range j.decoders {
			out, err := d.Decode(in)
			if err != nil {
				return fmt.Errorf("%s: tx %s: %w", d.Name(), tx.Hash, err)
			}
			res.Merge(out)
		}
	}

	job.Put(buf, domain.KindBridgeTransaction, mergeBridgeRecords(res.Transactions))
	job.Put(buf, domain.KindStateBatch, res.StateBatches)
	job.Put(buf, domain.KindDABatch, res.DABatches)
	return nil
}

func (j *BridgeJob) Close() error { return nil }

// mergeBridgeRecords collapses records sharing a msg hash. A sink upsert
// cannot touch the same key twice in one statement.
func mergeBridgeRecords(in []domain.BridgeTransaction) []domain.BridgeTransaction {
	idx := make(map[string]int)
	var out []domain.BridgeTransaction
	for _, r := range in {
		i, ok := idx[r.MsgHash]
		if !ok {
			idx[r.MsgHash] = len(out)
			out = append(out, r)
			continue
		}
		out[i].Merge(r)
	}
	return out
}

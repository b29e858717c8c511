package jobs

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

// ExportTracesJob fetches call traces for every block and flattens each call
// tree into rows addressed by their path from the root frame.
type ExportTracesJob struct {
	base
}

func NewExportTracesJob(node chain.Node, exec *executor.BatchExecutor) *ExportTracesJob {
	return &ExportTracesJob{base: newBase("export_traces", node, exec)}
}

func (j *ExportTracesJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindTransaction)
}

func (j *ExportTracesJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindTrace)
}

func (j *ExportTracesJob) Collect(ctx context.Context, buf *job.Buffer) error {
	txs, err := job.Get[domain.Transaction](buf, domain.KindTransaction)
	if err != nil {
		return err
	}
	type txKey struct {
		block uint64
		index uint64
	}
	hashes := make(map[txKey]string, len(txs))
	for _, tx := range txs {
		hashes[txKey{tx.BlockNumber, tx.TransactionIndex}] = tx.Hash
	}

	return executor.Execute(ctx, j.exec, buf.Range().Numbers(), func(ctx context.Context, batch []uint64) error {
		blocks, err := j.node.TraceBlocks(ctx, batch)
		if err != nil {
			return err
		}
		var traces []any
		for _, bt := range blocks {
			for _, tt := range bt.Transactions {
				hash := tt.TxHash
				if hash == "" {
					hash = hashes[txKey{bt.BlockNumber, uint64(tt.Index)}]
				}
				if hash == "" {
					return fmt.Errorf("trace for block %d index %d has no transaction", bt.BlockNumber, tt.Index)
				}
				for _, t := range FlattenTrace(bt.BlockNumber, hash, uint64(tt.Index), tt.Root) {
					traces = append(traces, t)
				}
			}
		}
		buf.Append(domain.KindTrace, traces...)
		return nil
	})
}

func (j *ExportTracesJob) Process(_ context.Context, buf *job.Buffer) error {
	blocks, _, err := blocksByNumber(buf)
	if err != nil {
		return err
	}
	traces, err := job.Get[domain.Trace](buf, domain.KindTrace)
	if err != nil {
		return err
	}

	traces, err = job.Enrich(traces, blocks,
		func(t domain.Trace) uint64 { return t.BlockNumber },
		blockKey,
		func(t domain.Trace, b domain.Block) domain.Trace {
			t.BlockHash = b.Hash
			t.BlockTimestamp = b.Timestamp
			return t
		})
	if err != nil {
		return err
	}

	slices.SortFunc(traces, func(a, b domain.Trace) int {
		return cmp.Or(
			cmp.Compare(a.BlockNumber, b.BlockNumber),
			cmp.Compare(a.TransactionIndex, b.TransactionIndex),
			slices.Compare(a.TraceAddress, b.TraceAddress),
		)
	})
	job.Put(buf, domain.KindTrace, traces)
	return nil
}

// FlattenTrace walks a call tree depth-first. A frame fails if it or any
// ancestor reverted.
func FlattenTrace(block uint64, txHash string, txIndex uint64, root *chain.CallFrame) []domain.Trace {
	if root == nil {
		return nil
	}
	var out []domain.Trace
	var walk func(f *chain.CallFrame, path []int, parentFailed bool)
	walk = func(f *chain.CallFrame, path []int, parentFailed bool) {
		failed := parentFailed || f.Error != ""
		traceType, callType := frameTypes(f.Type)

		t := domain.Trace{
			TransactionHash:  txHash,
			TransactionIndex: txIndex,
			BlockNumber:      block,
			TraceAddress:     slices.Clone(path),
			TraceType:        traceType,
			CallType:         callType,
			From:             f.From,
			To:               f.To,
			Value:            "0",
			Input:            f.Input,
			Output:           f.Output,
			Gas:              f.Gas,
			GasUsed:          f.GasUsed,
			Error:            f.Error,
			Status:           1,
		}
		if f.Value != nil {
			t.Value = f.Value.String()
		}
		if failed {
			t.Status = 0
		}
		t.TraceID = traceID(traceType, txHash, path)
		out = append(out, t)

		for i, c := range f.Calls {
			if c != nil {
				walk(c, append(path, i), failed)
			}
		}
	}
	walk(root, []int{}, false)
	return out
}

func frameTypes(frameType string) (traceType, callType string) {
	switch frameType {
	case "create", "create2":
		return "create", ""
	case "selfdestruct":
		return "suicide", ""
	default:
		return "call", frameType
	}
}

func traceID(traceType, txHash string, path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	id := traceType + "_" + txHash
	if len(parts) > 0 {
		id += "_" + strings.Join(parts, "_")
	}
	return id
}

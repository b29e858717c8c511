package jobs

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

// ExportCoinBalancesJob reads the native balance of every address active in a
// block: its miner, transaction participants and trace participants.
type ExportCoinBalancesJob struct {
	base
}

func NewExportCoinBalancesJob(node chain.Node, exec *executor.BatchExecutor) *ExportCoinBalancesJob {
	return &ExportCoinBalancesJob{base: newBase("export_coin_balances", node, exec)}
}

func (j *ExportCoinBalancesJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindTransaction, domain.KindTrace)
}

func (j *ExportCoinBalancesJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindCoinBalance)
}

func (j *ExportCoinBalancesJob) Collect(ctx context.Context, buf *job.Buffer) error {
	reqs, err := activeAddresses(buf)
	if err != nil {
		return err
	}

	return executor.Execute(ctx, j.exec, reqs, func(ctx context.Context, batch []chain.BalanceRequest) error {
		results, err := j.node.Balances(ctx, batch)
		if err != nil {
			return err
		}
		// a failed batch is retried item by item, so nothing lands in buf
		// until every result of this batch is good
		balances := make([]any, 0, len(results))
		for i, r := range results {
			if r.Err != nil {
				return fmt.Errorf("balance of %s at %d: %w", batch[i].Address, batch[i].Block, r.Err)
			}
			balances = append(balances, domain.CoinBalance{
				Address:     batch[i].Address,
				BlockNumber: batch[i].Block,
				Balance:     r.Balance.String(),
			})
		}
		buf.Append(domain.KindCoinBalance, balances...)
		return nil
	})
}

// activeAddresses returns one request per distinct (address, block).
func activeAddresses(buf *job.Buffer) ([]chain.BalanceRequest, error) {
	blocks, err := job.Get[domain.Block](buf, domain.KindBlock)
	if err != nil {
		return nil, err
	}
	txs, err := job.Get[domain.Transaction](buf, domain.KindTransaction)
	if err != nil {
		return nil, err
	}
	traces, err := job.Get[domain.Trace](buf, domain.KindTrace)
	if err != nil {
		return nil, err
	}

	seen := make(map[chain.BalanceRequest]struct{})
	var out []chain.BalanceRequest
	add := func(addr string, block uint64) {
		if addr == "" {
			return
		}
		r := chain.BalanceRequest{Address: addr, Block: block}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	for _, b := range blocks {
		add(b.Miner, b.Number)
	}
	for _, tx := range txs {
		add(tx.From, tx.BlockNumber)
		add(tx.To, tx.BlockNumber)
	}
	for _, t := range traces {
		add(t.From, t.BlockNumber)
		add(t.To, t.BlockNumber)
	}

	slices.SortFunc(out, func(a, b chain.BalanceRequest) int {
		return cmp.Or(cmp.Compare(a.Block, b.Block), cmp.Compare(a.Address, b.Address))
	})
	return out, nil
}

func (j *ExportCoinBalancesJob) Process(_ context.Context, buf *job.Buffer) error {
	_, byNumber, err := blocksByNumber(buf)
	if err != nil {
		return err
	}
	balances, err := job.Get[domain.CoinBalance](buf, domain.KindCoinBalance)
	if err != nil {
		return err
	}
	for i := range balances {
		balances[i].BlockTimestamp = byNumber[balances[i].BlockNumber].Timestamp
	}
	slices.SortFunc(balances, func(a, b domain.CoinBalance) int {
		return cmp.Or(cmp.Compare(a.BlockNumber, b.BlockNumber), cmp.Compare(a.Address, b.Address))
	})
	job.Put(buf, domain.KindCoinBalance, balances)
	return nil
}

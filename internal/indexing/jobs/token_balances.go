package jobs

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

// ExportTokenBalancesJob reads the balance of every transfer participant at
// the transfer's block and derives the latest balance per holder.
type ExportTokenBalancesJob struct {
	base
}

func NewExportTokenBalancesJob(node chain.Node, exec *executor.BatchExecutor) *ExportTokenBalancesJob {
	return &ExportTokenBalancesJob{base: newBase("export_token_balances", node, exec)}
}

func (j *ExportTokenBalancesJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindTokenTransfer)
}

func (j *ExportTokenBalancesJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindTokenBalance, domain.KindCurrentTokenBalance)
}

type holding struct {
	holder    string
	token     string
	tokenID   string
	tokenType domain.TokenType
	block     uint64
}

func (j *ExportTokenBalancesJob) Collect(ctx context.Context, buf *job.Buffer) error {
	transfers, err := job.Get[domain.TokenTransfer](buf, domain.KindTokenTransfer)
	if err != nil {
		return err
	}
	holdings := holdingsOf(transfers)

	return executor.Execute(ctx, j.exec, holdings, func(ctx context.Context, batch []holding) error {
		calls := make([]chain.CallRequest, len(batch))
		for i, h := range batch {
			data, err := balanceCall(h)
			if err != nil {
				return err
			}
			calls[i] = chain.CallRequest{To: h.token, Data: data, Block: h.block}
		}

		results, err := j.node.Calls(ctx, calls)
		if err != nil {
			return err
		}
		for i, r := range results {
			h := batch[i]
			if r.Err != nil {
				j.log.Debug("balanceOf failed", "token", h.token, "holder", h.holder, "block", h.block, "error", r.Err)
				continue
			}
			bal, ok := unpackBalance(r.Data)
			if !ok {
				continue
			}
			buf.Append(domain.KindTokenBalance, domain.TokenBalance{
				Address:      h.holder,
				TokenAddress: h.token,
				TokenID:      h.tokenID,
				TokenType:    h.tokenType,
				Balance:      bal.String(),
				BlockNumber:  h.block,
			})
		}
		return nil
	})
}

// holdingsOf returns the distinct (holder, token, id, block) tuples touched by
// transfers. ERC721 balances are per contract, not per id.
func holdingsOf(transfers []domain.TokenTransfer) []holding {
	seen := make(map[holding]struct{})
	var out []holding
	add := func(addr string, t domain.TokenTransfer) {
		if isZeroAddress(addr) {
			return
		}
		h := holding{holder: addr, token: t.TokenAddress, tokenType: t.TokenType, block: t.BlockNumber}
		if t.TokenType == domain.TokenTypeERC1155 {
			h.tokenID = t.TokenID
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, t := range transfers {
		add(t.From, t)
		add(t.To, t)
	}
	return out
}

func balanceCall(h holding) ([]byte, error) {
	if h.tokenType == domain.TokenTypeERC1155 {
		id, ok := new(big.Int).SetString(h.tokenID, 10)
		if !ok {
			return nil, fmt.Errorf("invalid token id %q", h.tokenID)
		}
		return erc1155ABI.Pack("balanceOf", addressArg(h.holder), id)
	}
	return erc20ABI.Pack("balanceOf", addressArg(h.holder))
}

func (j *ExportTokenBalancesJob) Process(_ context.Context, buf *job.Buffer) error {
	_, byNumber, err := blocksByNumber(buf)
	if err != nil {
		return err
	}
	balances, err := job.Get[domain.TokenBalance](buf, domain.KindTokenBalance)
	if err != nil {
		return err
	}

	for i := range balances {
		balances[i].BlockTimestamp = byNumber[balances[i].BlockNumber].Timestamp
	}
	slices.SortFunc(balances, func(a, b domain.TokenBalance) int {
		return cmp.Or(
			cmp.Compare(a.BlockNumber, b.BlockNumber),
			cmp.Compare(a.TokenAddress, b.TokenAddress),
			cmp.Compare(a.Address, b.Address),
			cmp.Compare(a.TokenID, b.TokenID),
		)
	})

	type key struct{ holder, token, id string }
	latest := make(map[key]int)
	var current []domain.CurrentTokenBalance
	for _, b := range balances {
		k := key{b.Address, b.TokenAddress, b.TokenID}
		if i, ok := latest[k]; ok {
			current[i] = domain.CurrentTokenBalance(b)
			continue
		}
		latest[k] = len(current)
		current = append(current, domain.CurrentTokenBalance(b))
	}

	job.Put(buf, domain.KindTokenBalance, balances)
	job.Put(buf, domain.KindCurrentTokenBalance, current)
	return nil
}

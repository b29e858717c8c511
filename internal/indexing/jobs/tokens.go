package jobs

import (
	"cmp"
	"context"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

// ExportTokensJob decodes ERC20, ERC721 and ERC1155 transfers from logs and
// fetches metadata for tokens not seen before by this process.
type ExportTokensJob struct {
	base

	mu    sync.Mutex
	known map[string]struct{}
}

func NewExportTokensJob(node chain.Node, exec *executor.BatchExecutor) *ExportTokensJob {
	return &ExportTokensJob{
		base:  newBase("export_tokens", node, exec),
		known: make(map[string]struct{}),
	}
}

func (j *ExportTokensJob) DependencyTypes() []domain.DataKind {
	return kinds(domain.KindBlock, domain.KindLog)
}

func (j *ExportTokensJob) OutputTypes() []domain.DataKind {
	return kinds(domain.KindTokenTransfer, domain.KindToken)
}

type newToken struct {
	address   string
	tokenType domain.TokenType
	block     uint64
}

func (j *ExportTokensJob) Collect(ctx context.Context, buf *job.Buffer) error {
	logs, err := job.Get[domain.Log](buf, domain.KindLog)
	if err != nil {
		return err
	}

	var transfers []domain.TokenTransfer
	for _, l := range logs {
		transfers = append(transfers, DecodeTokenTransfers(l)...)
	}
	job.Put(buf, domain.KindTokenTransfer, transfers)

	pending := j.claimNew(transfers)
	if len(pending) == 0 {
		return nil
	}

	return executor.Execute(ctx, j.exec, pending, func(ctx context.Context, batch []newToken) error {
		tokens, err := j.fetchMetadata(ctx, batch)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			buf.Append(domain.KindToken, t)
		}
		return nil
	})
}

// claimNew returns the first occurrence of every token address not yet known
// and marks them known.
func (j *ExportTokensJob) claimNew(transfers []domain.TokenTransfer) []newToken {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []newToken
	for _, t := range transfers {
		if _, ok := j.known[t.TokenAddress]; ok {
			continue
		}
		j.known[t.TokenAddress] = struct{}{}
		out = append(out, newToken{address: t.TokenAddress, tokenType: t.TokenType, block: t.BlockNumber})
	}
	return out
}

func (j *ExportTokensJob) forget(tokens []newToken) {
	j.mu.Lock()
	for _, t := range tokens {
		delete(j.known, t.address)
	}
	j.mu.Unlock()
}

func (j *ExportTokensJob) fetchMetadata(ctx context.Context, batch []newToken) ([]domain.Token, error) {
	name, _ := erc20ABI.Pack("name")
	symbol, _ := erc20ABI.Pack("symbol")
	decimals, _ := erc20ABI.Pack("decimals")

	calls := make([]chain.CallRequest, 0, len(batch)*3)
	for _, t := range batch {
		calls = append(calls,
			chain.CallRequest{To: t.address, Data: name, Block: t.block},
			chain.CallRequest{To: t.address, Data: symbol, Block: t.block},
			chain.CallRequest{To: t.address, Data: decimals, Block: t.block},
		)
	}

	results, err := j.node.Calls(ctx, calls)
	if err != nil {
		j.forget(batch)
		return nil, err
	}

	tokens := make([]domain.Token, len(batch))
	for i, t := range batch {
		r := results[i*3 : i*3+3]
		tokens[i] = domain.Token{
			Address:     t.address,
			TokenType:   t.tokenType,
			Name:        unpackString("name", okData(r[0])),
			Symbol:      unpackString("symbol", okData(r[1])),
			BlockNumber: t.block,
		}
		if t.tokenType == domain.TokenTypeERC20 {
			tokens[i].Decimals = unpackDecimals(okData(r[2]))
		}
	}
	return tokens, nil
}

func okData(r chain.CallResult) []byte {
	if r.Err != nil {
		return nil
	}
	return r.Data
}

func (j *ExportTokensJob) Process(_ context.Context, buf *job.Buffer) error {
	blocks, _, err := blocksByNumber(buf)
	if err != nil {
		return err
	}
	transfers, err := job.Get[domain.TokenTransfer](buf, domain.KindTokenTransfer)
	if err != nil {
		return err
	}
	tokens, err := job.Get[domain.Token](buf, domain.KindToken)
	if err != nil {
		return err
	}

	transfers, err = job.Enrich(transfers, blocks,
		func(t domain.TokenTransfer) uint64 { return t.BlockNumber },
		blockKey,
		func(t domain.TokenTransfer, b domain.Block) domain.TokenTransfer {
			t.BlockHash = b.Hash
			t.BlockTimestamp = b.Timestamp
			return t
		})
	if err != nil {
		return err
	}

	slices.SortFunc(transfers, func(a, b domain.TokenTransfer) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		if c := cmp.Compare(a.LogIndex, b.LogIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.BatchIndex, b.BatchIndex)
	})
	slices.SortFunc(tokens, func(a, b domain.Token) int { return cmp.Compare(a.Address, b.Address) })

	job.Put(buf, domain.KindTokenTransfer, transfers)
	job.Put(buf, domain.KindToken, tokens)
	return nil
}

// DecodeTokenTransfers returns the transfers encoded in l, or nil if l is not
// a recognised transfer event.
func DecodeTokenTransfers(l domain.Log) []domain.TokenTransfer {
	if len(l.Topics) == 0 {
		return nil
	}

	t := domain.TokenTransfer{
		TransactionHash: l.TransactionHash,
		LogIndex:        l.LogIndex,
		BlockNumber:     l.BlockNumber,
		BlockHash:       l.BlockHash,
		BlockTimestamp:  l.BlockTimestamp,
		TokenAddress:    l.Address,
	}

	data, err := hexutil.Decode(l.Data)
	if err != nil && l.Data != "" && l.Data != "0x" {
		return nil
	}

	switch l.Topics[0] {
	case topicTransfer:
		switch len(l.Topics) {
		case 3:
			if len(data) != 32 {
				return nil
			}
			t.TokenType = domain.TokenTypeERC20
			t.Value = new(big.Int).SetBytes(data).String()
		case 4:
			t.TokenType = domain.TokenTypeERC721
			t.Value = "1"
			t.TokenID = topicUint(l.Topics[3]).String()
		default:
			return nil
		}
		t.From = topicAddress(l.Topics[1])
		t.To = topicAddress(l.Topics[2])
		return []domain.TokenTransfer{t}

	case topicTransferSingle:
		if len(l.Topics) != 4 {
			return nil
		}
		out, err := singleArgs.Unpack(data)
		if err != nil {
			return nil
		}
		t.TokenType = domain.TokenTypeERC1155
		t.From = topicAddress(l.Topics[2])
		t.To = topicAddress(l.Topics[3])
		t.TokenID = out[0].(*big.Int).String()
		t.Value = out[1].(*big.Int).String()
		return []domain.TokenTransfer{t}

	case topicTransferBatch:
		if len(l.Topics) != 4 {
			return nil
		}
		out, err := batchArgs.Unpack(data)
		if err != nil {
			return nil
		}
		ids, values := out[0].([]*big.Int), out[1].([]*big.Int)
		if len(ids) != len(values) {
			return nil
		}
		t.TokenType = domain.TokenTypeERC1155
		t.From = topicAddress(l.Topics[2])
		t.To = topicAddress(l.Topics[3])
		res := make([]domain.TokenTransfer, len(ids))
		for i := range ids {
			res[i] = t
			res[i].BatchIndex = i
			res[i].TokenID = ids[i].String()
			res[i].Value = values[i].String()
		}
		return res
	}
	return nil
}

func addressArg(addr string) common.Address {
	return common.HexToAddress(addr)
}

package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainetl/internal/infra/chain"
	"github.com/vietddude/chainetl/internal/infra/rpc/provider"
	"github.com/vietddude/chainetl/internal/infra/rpc/routing"
)

// Client implements chain.Node on top of JSON-RPC providers. Trace calls go to
// the debug provider, which defaults to the main one.
type Client struct {
	provider provider.Provider
	debug    provider.Provider
	retry    routing.RetryConfig
}

var _ chain.Node = (*Client)(nil)

// NewClient creates a client. debug may be nil.
func NewClient(p provider.Provider, debug provider.Provider) *Client {
	if debug == nil {
		debug = p
	}
	return &Client{
		provider: p,
		debug:    debug,
		retry:    routing.DefaultRetryConfig,
	}
}

func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	result, err := routing.CallWithRetry(ctx, c.provider, c.retry, "eth_blockNumber")
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	var n hexutil.Uint64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %v", provider.ErrMalformedResponse, err)
	}
	return uint64(n), nil
}

func (c *Client) Blocks(ctx context.Context, numbers []uint64) ([]*chain.BlockBundle, error) {
	reqs := make([]provider.BatchRequest, len(numbers))
	for i, n := range numbers {
		reqs[i] = provider.BatchRequest{Method: "eth_getBlockByNumber", Params: []any{hexutil.EncodeUint64(n), true}}
	}

	resps, err := c.provider.BatchCall(ctx, reqs)
	if err != nil {
		return nil, err
	}

	out := make([]*chain.BlockBundle, len(numbers))
	for i, r := range resps {
		if err := requireResult(r, "block", numbers[i]); err != nil {
			return nil, err
		}
		var b rpcBlock
		if err := json.Unmarshal(r.Result, &b); err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", provider.ErrMalformedResponse, numbers[i], err)
		}
		out[i] = b.toBundle()
	}
	return out, nil
}

func (c *Client) BlockHashes(ctx context.Context, numbers []uint64) (map[uint64]string, error) {
	reqs := make([]provider.BatchRequest, len(numbers))
	for i, n := range numbers {
		reqs[i] = provider.BatchRequest{Method: "eth_getBlockByNumber", Params: []any{hexutil.EncodeUint64(n), false}}
	}

	resps, err := c.provider.BatchCall(ctx, reqs)
	if err != nil {
		return nil, err
	}

	hashes := make(map[uint64]string, len(numbers))
	for i, r := range resps {
		if r.Error != nil {
			return nil, fmt.Errorf("block %d: %w", numbers[i], r.Error)
		}
		if r.IsNull() {
			continue
		}
		var h rpcHeader
		if err := json.Unmarshal(r.Result, &h); err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", provider.ErrMalformedResponse, numbers[i], err)
		}
		hashes[numbers[i]] = strings.ToLower(h.Hash)
	}
	return hashes, nil
}

func (c *Client) Receipts(ctx context.Context, hashes []string) ([]*chain.ReceiptBundle, error) {
	reqs := make([]provider.BatchRequest, len(hashes))
	for i, h := range hashes {
		reqs[i] = provider.BatchRequest{Method: "eth_getTransactionReceipt", Params: []any{h}}
	}

	resps, err := c.provider.BatchCall(ctx, reqs)
	if err != nil {
		return nil, err
	}

	out := make([]*chain.ReceiptBundle, len(hashes))
	for i, r := range resps {
		if r.Error != nil {
			return nil, fmt.Errorf("receipt %s: %w", hashes[i], r.Error)
		}
		if r.IsNull() {
			return nil, fmt.Errorf("receipt %s: %w", hashes[i], provider.ErrMissingResult)
		}
		var rc rpcReceipt
		if err := json.Unmarshal(r.Result, &rc); err != nil {
			return nil, fmt.Errorf("%w: receipt %s: %v", provider.ErrMalformedResponse, hashes[i], err)
		}
		out[i] = rc.toBundle()
	}
	return out, nil
}

func (c *Client) TraceBlocks(ctx context.Context, numbers []uint64) ([]*chain.BlockTraces, error) {
	tracer := map[string]any{"tracer": "callTracer"}
	reqs := make([]provider.BatchRequest, len(numbers))
	for i, n := range numbers {
		reqs[i] = provider.BatchRequest{Method: "debug_traceBlockByNumber", Params: []any{hexutil.EncodeUint64(n), tracer}}
	}

	resps, err := c.debug.BatchCall(ctx, reqs)
	if err != nil {
		return nil, err
	}

	out := make([]*chain.BlockTraces, len(numbers))
	for i, r := range resps {
		if err := requireResult(r, "traces of block", numbers[i]); err != nil {
			return nil, err
		}
		var raw []rpcTxTrace
		if err := json.Unmarshal(r.Result, &raw); err != nil {
			return nil, fmt.Errorf("%w: traces of block %d: %v", provider.ErrMalformedResponse, numbers[i], err)
		}
		bt := &chain.BlockTraces{BlockNumber: numbers[i], Transactions: make([]chain.TxTrace, len(raw))}
		for j, t := range raw {
			if t.Error != "" && t.Result == nil {
				return nil, fmt.Errorf("trace tx %d of block %d: %s", j, numbers[i], t.Error)
			}
			bt.Transactions[j] = chain.TxTrace{TxHash: strings.ToLower(t.TxHash), Index: j, Root: t.Result.toFrame()}
		}
		out[i] = bt
	}
	return out, nil
}

func (c *Client) Calls(ctx context.Context, calls []chain.CallRequest) ([]chain.CallResult, error) {
	reqs := make([]provider.BatchRequest, len(calls))
	for i, call := range calls {
		reqs[i] = provider.BatchRequest{
			Method: "eth_call",
			Params: []any{
				map[string]string{"to": call.To, "data": hexutil.Encode(call.Data)},
				hexutil.EncodeUint64(call.Block),
			},
		}
	}

	resps, err := c.provider.BatchCall(ctx, reqs)
	if err != nil {
		return nil, err
	}

	out := make([]chain.CallResult, len(calls))
	for i, r := range resps {
		if r.Error != nil {
			out[i] = chain.CallResult{Err: r.Error}
			continue
		}
		var data hexutil.Bytes
		if err := json.Unmarshal(r.Result, &data); err != nil {
			out[i] = chain.CallResult{Err: fmt.Errorf("%w: eth_call: %v", provider.ErrMalformedResponse, err)}
			continue
		}
		out[i] = chain.CallResult{Data: data}
	}
	return out, nil
}

func (c *Client) Balances(ctx context.Context, reqs []chain.BalanceRequest) ([]chain.BalanceResult, error) {
	batch := make([]provider.BatchRequest, len(reqs))
	for i, r := range reqs {
		batch[i] = provider.BatchRequest{Method: "eth_getBalance", Params: []any{r.Address, hexutil.EncodeUint64(r.Block)}}
	}

	resps, err := c.provider.BatchCall(ctx, batch)
	if err != nil {
		return nil, err
	}

	out := make([]chain.BalanceResult, len(reqs))
	for i, r := range resps {
		if r.Error != nil {
			out[i] = chain.BalanceResult{Err: r.Error}
			continue
		}
		var bal hexutil.Big
		if err := json.Unmarshal(r.Result, &bal); err != nil {
			out[i] = chain.BalanceResult{Err: fmt.Errorf("%w: eth_getBalance: %v", provider.ErrMalformedResponse, err)}
			continue
		}
		out[i] = chain.BalanceResult{Balance: new(big.Int).Set(bal.ToInt())}
	}
	return out, nil
}

func requireResult(r provider.BatchResponse, what string, n uint64) error {
	if r.Error != nil {
		return fmt.Errorf("%s %d: %w", what, n, r.Error)
	}
	if r.IsNull() {
		return fmt.Errorf("%s %d: %w", what, n, provider.ErrMissingResult)
	}
	return nil
}

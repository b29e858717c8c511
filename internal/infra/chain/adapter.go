package chain

import (
	"context"
	"math/big"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Node is the typed view of the upstream JSON-RPC node used by extraction
// jobs. Batch methods return results in request order.
type Node interface {
	// LatestBlock returns the latest block number on the chain
	LatestBlock(ctx context.Context) (uint64, error)

	// Blocks fetches blocks with their full transaction lists
	Blocks(ctx context.Context, numbers []uint64) ([]*BlockBundle, error)

	// BlockHashes fetches only the canonical hash for each height. A height the
	// node does not know is absent from the map.
	BlockHashes(ctx context.Context, numbers []uint64) (map[uint64]string, error)

	// Receipts fetches receipts and logs by transaction hash
	Receipts(ctx context.Context, hashes []string) ([]*ReceiptBundle, error)

	// TraceBlocks fetches call traces for whole blocks
	TraceBlocks(ctx context.Context, numbers []uint64) ([]*BlockTraces, error)

	// Calls executes read-only contract calls. Per-call failures are reported
	// in CallResult.Err and do not fail the batch.
	Calls(ctx context.Context, calls []CallRequest) ([]CallResult, error)

	// Balances fetches native balances at a block height
	Balances(ctx context.Context, reqs []BalanceRequest) ([]BalanceResult, error)
}

// BlockBundle is a block together with its transactions.
type BlockBundle struct {
	Block        *domain.Block
	Transactions []*domain.Transaction
}

// ReceiptBundle is a receipt together with its logs.
type ReceiptBundle struct {
	Receipt *domain.Receipt
	Logs    []*domain.Log
}

// BlockTraces holds the root call frame of every transaction in a block.
type BlockTraces struct {
	BlockNumber  uint64
	Transactions []TxTrace
}

// TxTrace is the call tree of one transaction. TxHash may be empty on nodes
// that do not report it; Index is the position within the block.
type TxTrace struct {
	TxHash string
	Index  int
	Root   *CallFrame
}

// CallFrame is one frame of a callTracer result.
type CallFrame struct {
	Type    string
	From    string
	To      string
	Value   *big.Int
	Gas     uint64
	GasUsed uint64
	Input   string
	Output  string
	Error   string
	Calls   []*CallFrame
}

// CallRequest is an eth_call against a block height.
type CallRequest struct {
	To    string
	Data  []byte
	Block uint64
}

// CallResult is the outcome of one CallRequest.
type CallResult struct {
	Data []byte
	Err  error
}

// BalanceRequest is an eth_getBalance against a block height.
type BalanceRequest struct {
	Address string
	Block   uint64
}

// BalanceResult is the outcome of one BalanceRequest.
type BalanceResult struct {
	Balance *big.Int
	Err     error
}

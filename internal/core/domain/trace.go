package domain

// Trace is one call frame of a transaction execution.
type Trace struct {
	TraceID          string `db:"trace_id"`
	TransactionHash  string `db:"transaction_hash"`
	TransactionIndex uint64 `db:"transaction_index"`
	BlockNumber      uint64 `db:"block_number"`
	BlockHash        string `db:"block_hash"`
	BlockTimestamp   uint64 `db:"block_timestamp"`
	TraceAddress     []int  `db:"-"`
	TraceType        string `db:"trace_type"`
	CallType         string `db:"call_type"`
	From             string `db:"from_address"`
	To               string `db:"to_address"`
	Value            string `db:"value"`
	Input            string `db:"input"`
	Output           string `db:"output"`
	Gas              uint64 `db:"gas"`
	GasUsed          uint64 `db:"gas_used"`
	Error            string `db:"error"`
	Status           int    `db:"status"`
}

func (*Trace) Kind() DataKind { return KindTrace }

// Contract is a contract created by a successful create or create2 frame.
type Contract struct {
	Address         string `db:"address"`
	Deployer        string `db:"deployer"`
	TransactionHash string `db:"transaction_hash"`
	BlockNumber     uint64 `db:"block_number"`
	BlockHash       string `db:"block_hash"`
	BlockTimestamp  uint64 `db:"block_timestamp"`
	Bytecode        string `db:"bytecode"`
}

func (*Contract) Kind() DataKind { return KindContract }

// CoinBalance is the native balance of an address at a block height.
type CoinBalance struct {
	Address        string `db:"address"`
	BlockNumber    uint64 `db:"block_number"`
	BlockTimestamp uint64 `db:"block_timestamp"`
	Balance        string `db:"balance"`
}

func (*CoinBalance) Kind() DataKind { return KindCoinBalance }

package domain

// Block represents a blockchain block header.
type Block struct {
	Number           uint64 `db:"number"`
	Hash             string `db:"hash"`
	ParentHash       string `db:"parent_hash"`
	Timestamp        uint64 `db:"timestamp"`
	Miner            string `db:"miner"`
	GasLimit         uint64 `db:"gas_limit"`
	GasUsed          uint64 `db:"gas_used"`
	BaseFeePerGas    string `db:"base_fee_per_gas"`
	Size             uint64 `db:"size"`
	TransactionCount int    `db:"transaction_count"`
}

func (*Block) Kind() DataKind { return KindBlock }

// Transaction is a transaction as included in a block. Receipt fields are
// filled in by the receipts stage.
type Transaction struct {
	Hash                   string  `db:"hash"`
	BlockNumber            uint64  `db:"block_number"`
	BlockHash              string  `db:"block_hash"`
	BlockTimestamp         uint64  `db:"block_timestamp"`
	TransactionIndex       uint64  `db:"transaction_index"`
	Nonce                  uint64  `db:"nonce"`
	From                   string  `db:"from_address"`
	To                     string  `db:"to_address"`
	Value                  string  `db:"value"`
	Gas                    uint64  `db:"gas"`
	GasPrice               string  `db:"gas_price"`
	Input                  string  `db:"input"`
	Type                   uint64  `db:"transaction_type"`
	ReceiptGasUsed         uint64  `db:"receipt_gas_used"`
	ReceiptStatus          *uint64 `db:"receipt_status"`
	ReceiptContractAddress string  `db:"receipt_contract_address"`
}

func (*Transaction) Kind() DataKind { return KindTransaction }

// Receipt is the execution result of one transaction.
type Receipt struct {
	TransactionHash   string  `db:"transaction_hash"`
	TransactionIndex  uint64  `db:"transaction_index"`
	BlockNumber       uint64  `db:"block_number"`
	BlockHash         string  `db:"block_hash"`
	CumulativeGasUsed uint64  `db:"cumulative_gas_used"`
	GasUsed           uint64  `db:"gas_used"`
	EffectiveGasPrice string  `db:"effective_gas_price"`
	ContractAddress   string  `db:"contract_address"`
	Status            *uint64 `db:"status"`
}

func (*Receipt) Kind() DataKind { return KindReceipt }

// Log is an event emitted by a transaction. Topics holds at most four entries.
type Log struct {
	TransactionHash  string   `db:"transaction_hash"`
	LogIndex         uint64   `db:"log_index"`
	TransactionIndex uint64   `db:"transaction_index"`
	BlockNumber      uint64   `db:"block_number"`
	BlockHash        string   `db:"block_hash"`
	BlockTimestamp   uint64   `db:"block_timestamp"`
	Address          string   `db:"address"`
	Data             string   `db:"data"`
	Topics           []string `db:"-"`
}

func (*Log) Kind() DataKind { return KindLog }

// Topic returns the i-th topic or "" when absent.
func (l *Log) Topic(i int) string {
	if i < len(l.Topics) {
		return l.Topics[i]
	}
	return ""
}

package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

type rpcHeader struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          string         `json:"hash"`
	ParentHash    string         `json:"parentHash"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	Miner         string         `json:"miner"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	Size          hexutil.Uint64 `json:"size"`
}

type rpcBlock struct {
	rpcHeader
	Transactions []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash             string         `json:"hash"`
	Nonce            hexutil.Uint64 `json:"nonce"`
	BlockHash        string         `json:"blockHash"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	From             string         `json:"from"`
	To               *string        `json:"to"`
	Value            *hexutil.Big   `json:"value"`
	Gas              hexutil.Uint64 `json:"gas"`
	GasPrice         *hexutil.Big   `json:"gasPrice"`
	Input            string         `json:"input"`
	Type             hexutil.Uint64 `json:"type"`
}

type rpcReceipt struct {
	TransactionHash   string          `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         string          `json:"blockHash"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	ContractAddress   *string         `json:"contractAddress"`
	Status            *hexutil.Uint64 `json:"status"`
	Logs              []rpcLog        `json:"logs"`
}

type rpcLog struct {
	Address          string         `json:"address"`
	Topics           []string       `json:"topics"`
	Data             string         `json:"data"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	TransactionHash  string         `json:"transactionHash"`
	BlockHash        string         `json:"blockHash"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
}

type rpcCallFrame struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Value   *hexutil.Big    `json:"value"`
	Gas     hexutil.Uint64  `json:"gas"`
	GasUsed hexutil.Uint64  `json:"gasUsed"`
	Input   string          `json:"input"`
	Output  string          `json:"output"`
	Error   string          `json:"error"`
	Calls   []*rpcCallFrame `json:"calls"`
}

type rpcTxTrace struct {
	TxHash string        `json:"txHash"`
	Result *rpcCallFrame `json:"result"`
	Error  string        `json:"error"`
}

func (h *rpcHeader) toDomain(txCount int) *domain.Block {
	return &domain.Block{
		Number:           uint64(h.Number),
		Hash:             strings.ToLower(h.Hash),
		ParentHash:       strings.ToLower(h.ParentHash),
		Timestamp:        uint64(h.Timestamp),
		Miner:            strings.ToLower(h.Miner),
		GasLimit:         uint64(h.GasLimit),
		GasUsed:          uint64(h.GasUsed),
		BaseFeePerGas:    bigString(h.BaseFeePerGas),
		Size:             uint64(h.Size),
		TransactionCount: txCount,
	}
}

func (b *rpcBlock) toBundle() *chain.BlockBundle {
	block := b.toDomain(len(b.Transactions))
	txs := make([]*domain.Transaction, len(b.Transactions))
	for i, t := range b.Transactions {
		to := ""
		if t.To != nil {
			to = strings.ToLower(*t.To)
		}
		txs[i] = &domain.Transaction{
			Hash:             strings.ToLower(t.Hash),
			BlockNumber:      block.Number,
			BlockHash:        block.Hash,
			BlockTimestamp:   block.Timestamp,
			TransactionIndex: uint64(t.TransactionIndex),
			Nonce:            uint64(t.Nonce),
			From:             strings.ToLower(t.From),
			To:               to,
			Value:            bigString(t.Value),
			Gas:              uint64(t.Gas),
			GasPrice:         bigString(t.GasPrice),
			Input:            t.Input,
			Type:             uint64(t.Type),
		}
	}
	return &chain.BlockBundle{Block: block, Transactions: txs}
}

func (r *rpcReceipt) toBundle() *chain.ReceiptBundle {
	receipt := &domain.Receipt{
		TransactionHash:   strings.ToLower(r.TransactionHash),
		TransactionIndex:  uint64(r.TransactionIndex),
		BlockNumber:       uint64(r.BlockNumber),
		BlockHash:         strings.ToLower(r.BlockHash),
		CumulativeGasUsed: uint64(r.CumulativeGasUsed),
		GasUsed:           uint64(r.GasUsed),
		EffectiveGasPrice: bigString(r.EffectiveGasPrice),
	}
	if r.ContractAddress != nil {
		receipt.ContractAddress = strings.ToLower(*r.ContractAddress)
	}
	if r.Status != nil {
		receipt.Status = domain.Ptr(uint64(*r.Status))
	}

	logs := make([]*domain.Log, len(r.Logs))
	for i, l := range r.Logs {
		topics := make([]string, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = strings.ToLower(t)
		}
		logs[i] = &domain.Log{
			TransactionHash:  receipt.TransactionHash,
			LogIndex:         uint64(l.LogIndex),
			TransactionIndex: uint64(l.TransactionIndex),
			BlockNumber:      uint64(l.BlockNumber),
			BlockHash:        strings.ToLower(l.BlockHash),
			Address:          strings.ToLower(l.Address),
			Data:             l.Data,
			Topics:           topics,
		}
	}
	return &chain.ReceiptBundle{Receipt: receipt, Logs: logs}
}

func (f *rpcCallFrame) toFrame() *chain.CallFrame {
	if f == nil {
		return nil
	}
	out := &chain.CallFrame{
		Type:    strings.ToLower(f.Type),
		From:    strings.ToLower(f.From),
		To:      strings.ToLower(f.To),
		Gas:     uint64(f.Gas),
		GasUsed: uint64(f.GasUsed),
		Input:   f.Input,
		Output:  f.Output,
		Error:   f.Error,
	}
	if f.Value != nil {
		out.Value = f.Value.ToInt()
	}
	for _, c := range f.Calls {
		out.Calls = append(out.Calls, c.toFrame())
	}
	return out
}

func bigString(b *hexutil.Big) string {
	if b == nil {
		return "0"
	}
	return (*big.Int)(b).String()
}

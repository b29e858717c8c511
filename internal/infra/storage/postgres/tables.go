package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// maxParams is the bind parameter limit of one postgres statement.
const maxParams = 65535

// table describes how one record kind is stored.
type table struct {
	name     string
	columns  []string
	keys     []string
	onUpdate string // ON CONFLICT action; "" means DO NOTHING
	scoped   bool   // rows belong to one block and are replaced with it
	row      func(rec any) (any, error)
}

func (t table) insertSQL() string {
	named := make([]string, len(t.columns))
	for i, c := range t.columns {
		named[i] = ":" + c
	}
	action := "DO NOTHING"
	if t.onUpdate != "" {
		action = "DO UPDATE SET " + t.onUpdate
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		t.name,
		strings.Join(t.columns, ", "),
		strings.Join(named, ", "),
		strings.Join(t.keys, ", "),
		action,
	)
}

// chunkSize is the number of rows that fit one statement.
func (t table) chunkSize() int {
	return maxParams / len(t.columns)
}

// overwrite sets every non-key column from the incoming row.
func overwrite(columns, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	return strings.Join(sets, ", ")
}

// coalesce keeps existing non-null columns and takes the incoming status.
func coalesce(name string, columns, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		switch {
		case isKey[c]:
		case c == "status":
			sets = append(sets, fmt.Sprintf("status = COALESCE(EXCLUDED.status, %s.status)", name))
		default:
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", c, name, c, c))
		}
	}
	return strings.Join(sets, ", ")
}

func newTable(name string, columns, keys []string, scoped bool, row func(any) (any, error)) table {
	return table{name: name, columns: columns, keys: keys, scoped: scoped, row: row}
}

func (t table) overwriting() table {
	t.onUpdate = overwrite(t.columns, t.keys)
	return t
}

// as passes records of type T through unchanged.
func as[T any](rec any) (any, error) {
	v, ok := rec.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("expected %T, got %T", zero, rec)
	}
	return v, nil
}

type logRow struct {
	domain.Log
	TopicArray pq.StringArray `db:"topics"`
}

type traceRow struct {
	domain.Trace
	AddressArray pq.Int64Array `db:"trace_address"`
}

var (
	blockColumns = []string{"number", "hash", "parent_hash", "timestamp", "miner", "gas_limit", "gas_used",
		"base_fee_per_gas", "size", "transaction_count"}
	transactionColumns = []string{"hash", "block_number", "block_hash", "block_timestamp", "transaction_index",
		"nonce", "from_address", "to_address", "value", "gas", "gas_price", "input", "transaction_type",
		"receipt_gas_used", "receipt_status", "receipt_contract_address"}
	receiptColumns = []string{"transaction_hash", "transaction_index", "block_number", "block_hash",
		"cumulative_gas_used", "gas_used", "effective_gas_price", "contract_address", "status"}
	logColumns = []string{"transaction_hash", "log_index", "transaction_index", "block_number", "block_hash",
		"block_timestamp", "address", "data", "topics"}
	transferColumns = []string{"transaction_hash", "log_index", "batch_index", "block_number", "block_hash",
		"block_timestamp", "token_address", "token_type", "from_address", "to_address", "value", "token_id"}
	tokenColumns   = []string{"address", "token_type", "name", "symbol", "decimals", "block_number"}
	balanceColumns = []string{"address", "token_address", "token_id", "token_type", "balance", "block_number",
		"block_timestamp"}
	traceColumns = []string{"trace_id", "transaction_hash", "transaction_index", "block_number", "block_hash",
		"block_timestamp", "trace_address", "trace_type", "call_type", "from_address", "to_address", "value",
		"input", "output", "gas", "gas_used", "error", "status"}
	contractColumns = []string{"address", "deployer", "transaction_hash", "block_number", "block_hash",
		"block_timestamp", "bytecode"}
	coinBalanceColumns = []string{"address", "block_number", "block_timestamp", "balance"}
	bridgeColumns      = []string{"msg_hash", "family", "direction", "message_kind", "msg_index",
		"l1_transaction_hash", "l1_block_number", "l1_timestamp", "l1_from_address", "l2_transaction_hash",
		"l2_block_number", "l2_timestamp", "l2_to_address", "l1_token_address", "l2_token_address", "amount",
		"status"}
	stateBatchColumns = []string{"family", "batch_index", "root", "l2_block_number", "l1_transaction_hash",
		"l1_block_number", "l1_timestamp"}
	daBatchColumns = []string{"family", "data_store_id", "header_hash", "l1_transaction_hash", "l1_block_number",
		"l1_timestamp"}
)

// tables maps every record kind to its storage and conflict policy.
var tables = func() map[domain.DataKind]table {
	current := newTable("current_token_balances", balanceColumns,
		[]string{"address", "token_address", "token_id"}, false, as[domain.CurrentTokenBalance])
	current.onUpdate = overwrite(current.columns, current.keys) +
		" WHERE EXCLUDED.block_number >= current_token_balances.block_number"

	bridge := newTable("bridge_transactions", bridgeColumns, []string{"msg_hash"}, false, as[domain.BridgeTransaction])
	bridge.onUpdate = coalesce(bridge.name, bridge.columns, bridge.keys)

	return map[domain.DataKind]table{
		domain.KindBlock: newTable("blocks", blockColumns, []string{"number"}, true, as[domain.Block]).overwriting(),
		domain.KindTransaction: newTable("transactions", transactionColumns, []string{"hash"}, true,
			as[domain.Transaction]).overwriting(),
		domain.KindReceipt: newTable("receipts", receiptColumns, []string{"transaction_hash"}, true,
			as[domain.Receipt]).overwriting(),
		domain.KindLog: newTable("logs", logColumns, []string{"transaction_hash", "log_index"}, true,
			func(rec any) (any, error) {
				l, ok := rec.(domain.Log)
				if !ok {
					return nil, fmt.Errorf("expected domain.Log, got %T", rec)
				}
				return logRow{Log: l, TopicArray: pq.StringArray(l.Topics)}, nil
			}).overwriting(),
		domain.KindTokenTransfer: newTable("token_transfers", transferColumns,
			[]string{"transaction_hash", "log_index", "batch_index"}, true, as[domain.TokenTransfer]).overwriting(),
		domain.KindToken: newTable("tokens", tokenColumns, []string{"address"}, false, as[domain.Token]),
		domain.KindTokenBalance: newTable("token_balances", balanceColumns,
			[]string{"address", "token_address", "token_id", "block_number"}, true, as[domain.TokenBalance]),
		domain.KindCurrentTokenBalance: current,
		domain.KindTrace: newTable("traces", traceColumns, []string{"trace_id"}, true,
			func(rec any) (any, error) {
				t, ok := rec.(domain.Trace)
				if !ok {
					return nil, fmt.Errorf("expected domain.Trace, got %T", rec)
				}
				addr := make(pq.Int64Array, len(t.TraceAddress))
				for i, p := range t.TraceAddress {
					addr[i] = int64(p)
				}
				return traceRow{Trace: t, AddressArray: addr}, nil
			}).overwriting(),
		domain.KindContract: newTable("contracts", contractColumns, []string{"address"}, true,
			as[domain.Contract]).overwriting(),
		domain.KindCoinBalance: newTable("coin_balances", coinBalanceColumns,
			[]string{"address", "block_number"}, true, as[domain.CoinBalance]),
		domain.KindBridgeTransaction: bridge,
		domain.KindStateBatch: newTable("state_batches", stateBatchColumns, []string{"family", "batch_index"},
			false, as[domain.StateBatch]).overwriting(),
		domain.KindDABatch: newTable("da_batches", daBatchColumns, []string{"family", "data_store_id"},
			false, as[domain.DABatch]).overwriting(),
	}
}()

func columnList(columns []string) string {
	return strings.Join(columns, ", ")
}

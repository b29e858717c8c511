package domain

// DataKind names one record type flowing between extraction jobs and sinks.
type DataKind string

const (
	KindBlock               DataKind = "block"
	KindTransaction         DataKind = "transaction"
	KindReceipt             DataKind = "receipt"
	KindLog                 DataKind = "log"
	KindTokenTransfer       DataKind = "token_transfer"
	KindToken               DataKind = "token"
	KindTokenBalance        DataKind = "token_balance"
	KindCurrentTokenBalance DataKind = "current_token_balance"
	KindTrace               DataKind = "trace"
	KindContract            DataKind = "contract"
	KindCoinBalance         DataKind = "coin_balance"
	KindBridgeTransaction   DataKind = "bridge_transaction"
	KindStateBatch          DataKind = "state_batch"
	KindDABatch             DataKind = "da_batch"
)

// BlockScopedKinds are the kinds whose rows belong to exactly one block and are
// replaced wholesale when that block is re-derived. Balances sampled at a
// height are included: a plain write never overwrites them, a replace does.
var BlockScopedKinds = []DataKind{
	KindTransaction,
	KindReceipt,
	KindLog,
	KindTokenTransfer,
	KindTrace,
	KindContract,
	KindTokenBalance,
	KindCoinBalance,
}

// Record is implemented by every typed record a job can emit.
type Record interface {
	Kind() DataKind
}

// Ptr returns a pointer to v. Used for the nullable columns of partially
// populated records.
func Ptr[T any](v T) *T {
	return &v
}

package domain

type BridgeFamily string

const (
	BridgeArbitrum BridgeFamily = "arbitrum"
	BridgeOptimism BridgeFamily = "optimism"
	BridgeZkEVM    BridgeFamily = "zkevm"
	BridgeLinea    BridgeFamily = "linea"
	BridgeMantle   BridgeFamily = "mantle"
)

type BridgeDirection string

const (
	BridgeDeposit    BridgeDirection = "deposit"
	BridgeWithdrawal BridgeDirection = "withdrawal"
)

// BridgeTransaction is one cross-chain message keyed by MsgHash. The L1 and
// L2 halves are written by different extraction passes, so every column except
// the key is nullable and merged on upsert.
type BridgeTransaction struct {
	MsgHash           string           `db:"msg_hash"`
	Family            BridgeFamily     `db:"family"`
	Direction         *BridgeDirection `db:"direction"`
	MessageKind       *string          `db:"message_kind"`
	Index             *string          `db:"msg_index"`
	L1TransactionHash *string          `db:"l1_transaction_hash"`
	L1BlockNumber     *uint64          `db:"l1_block_number"`
	L1Timestamp       *uint64          `db:"l1_timestamp"`
	L1From            *string          `db:"l1_from_address"`
	L2TransactionHash *string          `db:"l2_transaction_hash"`
	L2BlockNumber     *uint64          `db:"l2_block_number"`
	L2Timestamp       *uint64          `db:"l2_timestamp"`
	L2To              *string          `db:"l2_to_address"`
	L1TokenAddress    *string          `db:"l1_token_address"`
	L2TokenAddress    *string          `db:"l2_token_address"`
	Amount            *string          `db:"amount"`
	Status            *string          `db:"status"`
}

func (*BridgeTransaction) Kind() DataKind { return KindBridgeTransaction }

// StateBatch is a rollup output commitment posted to L1.
type StateBatch struct {
	Family            BridgeFamily `db:"family"`
	BatchIndex        uint64       `db:"batch_index"`
	Root              string       `db:"root"`
	L2BlockNumber     uint64       `db:"l2_block_number"`
	L1TransactionHash string       `db:"l1_transaction_hash"`
	L1BlockNumber     uint64       `db:"l1_block_number"`
	L1Timestamp       uint64       `db:"l1_timestamp"`
}

func (*StateBatch) Kind() DataKind { return KindStateBatch }

// DABatch is a data-availability store confirmation.
type DABatch struct {
	Family            BridgeFamily `db:"family"`
	DataStoreID       uint64       `db:"data_store_id"`
	HeaderHash        string       `db:"header_hash"`
	L1TransactionHash string       `db:"l1_transaction_hash"`
	L1BlockNumber     uint64       `db:"l1_block_number"`
	L1Timestamp       uint64       `db:"l1_timestamp"`
}

func (*DABatch) Kind() DataKind { return KindDABatch }

// Merge fills the null columns of b from other. Status is the exception: the
// later record wins, since it reflects a later event.
func (b *BridgeTransaction) Merge(other BridgeTransaction) {
	fill(&b.Direction, other.Direction)
	fill(&b.MessageKind, other.MessageKind)
	fill(&b.Index, other.Index)
	fill(&b.L1TransactionHash, other.L1TransactionHash)
	fill(&b.L1BlockNumber, other.L1BlockNumber)
	fill(&b.L1Timestamp, other.L1Timestamp)
	fill(&b.L1From, other.L1From)
	fill(&b.L2TransactionHash, other.L2TransactionHash)
	fill(&b.L2BlockNumber, other.L2BlockNumber)
	fill(&b.L2Timestamp, other.L2Timestamp)
	fill(&b.L2To, other.L2To)
	fill(&b.L1TokenAddress, other.L1TokenAddress)
	fill(&b.L2TokenAddress, other.L2TokenAddress)
	fill(&b.Amount, other.Amount)
	if other.Status != nil {
		b.Status = other.Status
	}
}

func fill[T any](dst **T, src *T) {
	if *dst == nil && src != nil {
		*dst = src
	}
}

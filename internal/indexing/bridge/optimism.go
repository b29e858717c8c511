package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const optimismEventsJSON = `[
	{"type":"event","name":"TransactionDeposited","inputs":[
		{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},
		{"name":"version","type":"uint256","indexed":true},{"name":"opaqueData","type":"bytes"}]},
	{"type":"event","name":"MessagePassed","inputs":[
		{"name":"nonce","type":"uint256","indexed":true},{"name":"sender","type":"address","indexed":true},
		{"name":"target","type":"address","indexed":true},{"name":"value","type":"uint256"},
		{"name":"gasLimit","type":"uint256"},{"name":"data","type":"bytes"},{"name":"withdrawalHash","type":"bytes32"}]},
	{"type":"event","name":"WithdrawalProven","inputs":[
		{"name":"withdrawalHash","type":"bytes32","indexed":true},{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true}]},
	{"type":"event","name":"WithdrawalFinalized","inputs":[
		{"name":"withdrawalHash","type":"bytes32","indexed":true},{"name":"success","type":"bool"}]},
	{"type":"event","name":"OutputProposed","inputs":[
		{"name":"outputRoot","type":"bytes32","indexed":true},{"name":"l2OutputIndex","type":"uint256","indexed":true},
		{"name":"l2BlockNumber","type":"uint256","indexed":true},{"name":"l1Timestamp","type":"uint256"}]}
]`

var optimismABI = mustABI(optimismEventsJSON)

const (
	depositTxType     = 0x7e
	opaqueDataMinLen  = 32 + 32 + 8 + 1
	userDepositDomain = 0
)

// DefaultMsgPasser is the L2ToL1MessagePasser predeploy.
const DefaultMsgPasser = "0x4200000000000000000000000000000000000016"

// DepositTx is the L2 transaction derived from a TransactionDeposited event.
type DepositTx struct {
	SourceHash          common.Hash
	From                common.Address
	To                  *common.Address `rlp:"nil"`
	Mint                *big.Int        `rlp:"nil"`
	Value               *big.Int
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

// Hash returns the L2 transaction hash.
func (d *DepositTx) Hash() (common.Hash, error) {
	return hashEncoding(typedEncoding(depositTxType, d))
}

// UserDepositSourceHash derives the source hash of a user deposit from the
// L1 block hash and log index of its TransactionDeposited event.
func UserDepositSourceHash(blockHash common.Hash, logIndex uint64) common.Hash {
	var idx [32]byte
	binary.BigEndian.PutUint64(idx[24:], logIndex)
	depositID := crypto.Keccak256Hash(blockHash.Bytes(), idx[:])

	var domainInput [32]byte
	domainInput[31] = userDepositDomain
	return crypto.Keccak256Hash(domainInput[:], depositID.Bytes())
}

// OpaqueDeposit is the version 0 opaque payload of TransactionDeposited.
type OpaqueDeposit struct {
	Mint       *big.Int
	Value      *big.Int
	Gas        uint64
	IsCreation bool
	Data       []byte
}

// ParseOpaqueData unpacks mint, value, gas, the creation flag and calldata.
func ParseOpaqueData(opaque []byte) (*OpaqueDeposit, error) {
	if len(opaque) < opaqueDataMinLen {
		return nil, fmt.Errorf("%w: opaque data is %d bytes, need %d", ErrTruncatedPayload, len(opaque), opaqueDataMinLen)
	}
	return &OpaqueDeposit{
		Mint:       new(big.Int).SetBytes(opaque[0:32]),
		Value:      new(big.Int).SetBytes(opaque[32:64]),
		Gas:        binary.BigEndian.Uint64(opaque[64:72]),
		IsCreation: opaque[72] == 1,
		Data:       common.CopyBytes(opaque[73:]),
	}, nil
}

// NewDepositTx assembles the deposit transaction for an event at logIndex of
// the block blockHash.
func NewDepositTx(blockHash common.Hash, logIndex uint64, from, to common.Address, o *OpaqueDeposit) *DepositTx {
	tx := &DepositTx{
		SourceHash: UserDepositSourceHash(blockHash, logIndex),
		From:       from,
		Value:      o.Value,
		Gas:        o.Gas,
		Data:       o.Data,
	}
	if !o.IsCreation {
		tx.To = &to
	}
	// A zero mint is encoded as nil.
	if o.Mint.Sign() != 0 {
		tx.Mint = o.Mint
	}
	return tx
}

var withdrawalArgs = func() abi.Arguments {
	u256, _ := abi.NewType("uint256", "", nil)
	addr, _ := abi.NewType("address", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)
	return abi.Arguments{{Type: u256}, {Type: addr}, {Type: addr}, {Type: u256}, {Type: u256}, {Type: bytesTy}}
}()

// WithdrawalHash hashes the ABI encoding of a withdrawal transaction.
func WithdrawalHash(nonce *big.Int, sender, target common.Address, value, gasLimit *big.Int, data []byte) (common.Hash, error) {
	enc, err := withdrawalArgs.Pack(nonce, sender, target, value, gasLimit, data)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

type optimism struct {
	layer Layer

	portal    string
	oracle    string
	msgPasser string
}

// NewOptimism builds the OP-Bedrock decoder. On L1 it needs the portal and
// optionally the output oracle; on L2 it watches deposit transactions and the
// message passer.
func NewOptimism(p Params) (Decoder, error) {
	d := &optimism{layer: p.Layer}
	switch p.Layer {
	case LayerL1:
		var err error
		if d.portal, err = p.contract("portal"); err != nil {
			return nil, err
		}
		d.oracle = p.optionalContract("output_oracle")
	case LayerL2:
		d.msgPasser = p.optionalContract("message_passer")
		if d.msgPasser == "" {
			d.msgPasser = DefaultMsgPasser
		}
	default:
		return nil, fmt.Errorf("unknown layer %q", p.Layer)
	}
	return d, nil
}

func (d *optimism) Name() string { return "optimism_" + string(d.layer) }

func (d *optimism) Decode(tx *Tx) (Result, error) {
	if d.layer == LayerL1 {
		return d.decodeL1(tx)
	}
	return d.decodeL2(tx)
}

func (d *optimism) decodeL1(tx *Tx) (Result, error) {
	var res Result

	for _, l := range logsFrom(tx.Logs, d.portal) {
		switch {
		case isTopic(l, optimismABI.Events["TransactionDeposited"]):
			rec, err := d.deposit(tx, l)
			if err != nil {
				return res, err
			}
			res.Transactions = append(res.Transactions, *rec)

		case isTopic(l, optimismABI.Events["WithdrawalProven"]):
			res.Transactions = append(res.Transactions, d.withdrawalL1(tx, l, "proven"))

		case isTopic(l, optimismABI.Events["WithdrawalFinalized"]):
			args, err := unpackLog(optimismABI.Events["WithdrawalFinalized"], l)
			if err != nil {
				return res, err
			}
			status := "finalized"
			if !args[0].(bool) {
				status = "failed"
			}
			res.Transactions = append(res.Transactions, d.withdrawalL1(tx, l, status))
		}
	}

	if d.oracle != "" {
		ev := optimismABI.Events["OutputProposed"]
		for _, l := range logsFrom(tx.Logs, d.oracle) {
			if !isTopic(l, ev) {
				continue
			}
			if _, err := unpackLog(ev, l); err != nil {
				return res, err
			}
			res.StateBatches = append(res.StateBatches, domain.StateBatch{
				Family:            domain.BridgeOptimism,
				BatchIndex:        topicHash(l, 2).Big().Uint64(),
				Root:              strings.ToLower(topicHash(l, 1).Hex()),
				L2BlockNumber:     topicHash(l, 3).Big().Uint64(),
				L1TransactionHash: tx.Transaction.Hash,
				L1BlockNumber:     tx.Block.Number,
				L1Timestamp:       tx.Block.Timestamp,
			})
		}
	}
	return res, nil
}

func (d *optimism) deposit(tx *Tx, l domain.Log) (*domain.BridgeTransaction, error) {
	if v := topicHash(l, 3).Big(); v.Sign() != 0 {
		return nil, fmt.Errorf("unsupported deposit version %s", v)
	}
	args, err := unpackLog(optimismABI.Events["TransactionDeposited"], l)
	if err != nil {
		return nil, err
	}
	opaque, err := ParseOpaqueData(args[0].([]byte))
	if err != nil {
		return nil, err
	}

	from := common.BytesToAddress(topicHash(l, 1).Bytes()[12:])
	to := common.BytesToAddress(topicHash(l, 2).Bytes()[12:])
	dep := NewDepositTx(common.HexToHash(l.BlockHash), l.LogIndex, from, to, opaque)
	hash, err := dep.Hash()
	if err != nil {
		return nil, err
	}

	call, err := DecodeRemoteCall(opaque.Data)
	if err != nil {
		return nil, err
	}

	rec := &domain.BridgeTransaction{
		MsgHash:           strings.ToLower(hash.Hex()),
		Family:            domain.BridgeOptimism,
		Direction:         directionPtr(domain.BridgeDeposit),
		MessageKind:       domain.Ptr("deposit"),
		L1TransactionHash: domain.Ptr(tx.Transaction.Hash),
		L1BlockNumber:     domain.Ptr(tx.Block.Number),
		L1Timestamp:       domain.Ptr(tx.Block.Timestamp),
		L1From:            domain.Ptr(tx.Transaction.From),
		L2To:              domain.Ptr(lowerHex(to)),
		Amount:            domain.Ptr(opaque.Value.String()),
		Status:            domain.Ptr("initiated"),
	}
	if call.Known() {
		rec.L2To = domain.Ptr(lowerHex(call.To))
		rec.Amount = domain.Ptr(call.Amount.String())
		rec.L1TokenAddress = domain.Ptr(lowerHex(call.RemoteToken))
		rec.L2TokenAddress = domain.Ptr(lowerHex(call.LocalToken))
	}
	return rec, nil
}

func (d *optimism) withdrawalL1(tx *Tx, l domain.Log, status string) domain.BridgeTransaction {
	return domain.BridgeTransaction{
		MsgHash:           strings.ToLower(topicHash(l, 1).Hex()),
		Family:            domain.BridgeOptimism,
		Direction:         directionPtr(domain.BridgeWithdrawal),
		L1TransactionHash: domain.Ptr(tx.Transaction.Hash),
		L1BlockNumber:     domain.Ptr(tx.Block.Number),
		L1Timestamp:       domain.Ptr(tx.Block.Timestamp),
		Status:            domain.Ptr(status),
	}
}

func (d *optimism) decodeL2(tx *Tx) (Result, error) {
	var res Result

	if tx.Transaction.Type == depositTxType {
		res.Transactions = append(res.Transactions, domain.BridgeTransaction{
			MsgHash:           tx.Transaction.Hash,
			Family:            domain.BridgeOptimism,
			Direction:         directionPtr(domain.BridgeDeposit),
			L2TransactionHash: domain.Ptr(tx.Transaction.Hash),
			L2BlockNumber:     domain.Ptr(tx.Block.Number),
			L2Timestamp:       domain.Ptr(tx.Block.Timestamp),
			Status:            domain.Ptr("relayed"),
		})
	}

	ev := optimismABI.Events["MessagePassed"]
	for _, l := range logsFrom(tx.Logs, d.msgPasser) {
		if !isTopic(l, ev) {
			continue
		}
		args, err := unpackLog(ev, l)
		if err != nil {
			return res, err
		}
		nonce := topicHash(l, 1).Big()
		sender := common.BytesToAddress(topicHash(l, 2).Bytes()[12:])
		target := common.BytesToAddress(topicHash(l, 3).Bytes()[12:])
		value, gasLimit, data := args[0].(*big.Int), args[1].(*big.Int), args[2].([]byte)
		emitted := common.Hash(args[3].([32]byte))

		computed, err := WithdrawalHash(nonce, sender, target, value, gasLimit, data)
		if err != nil {
			return res, err
		}
		if computed != emitted {
			return res, fmt.Errorf("withdrawal hash mismatch in %s: event %s, computed %s", tx.Transaction.Hash, emitted.Hex(), computed.Hex())
		}

		call, err := DecodeRemoteCall(data)
		if err != nil {
			return res, err
		}
		rec := domain.BridgeTransaction{
			MsgHash:           strings.ToLower(computed.Hex()),
			Family:            domain.BridgeOptimism,
			Direction:         directionPtr(domain.BridgeWithdrawal),
			MessageKind:       domain.Ptr("withdrawal"),
			Index:             domain.Ptr(nonce.String()),
			L2TransactionHash: domain.Ptr(tx.Transaction.Hash),
			L2BlockNumber:     domain.Ptr(tx.Block.Number),
			L2Timestamp:       domain.Ptr(tx.Block.Timestamp),
			Amount:            domain.Ptr(value.String()),
			Status:            domain.Ptr("initiated"),
		}
		if call.Known() {
			rec.Amount = domain.Ptr(call.Amount.String())
			rec.L1TokenAddress = domain.Ptr(lowerHex(call.LocalToken))
			rec.L2TokenAddress = domain.Ptr(lowerHex(call.RemoteToken))
		}
		res.Transactions = append(res.Transactions, rec)
	}
	return res, nil
}

package bridge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const arbitrumEventsJSON = `[
	{"type":"event","name":"MessageDelivered","inputs":[
		{"name":"messageIndex","type":"uint256","indexed":true},{"name":"beforeInboxAcc","type":"bytes32","indexed":true},
		{"name":"inbox","type":"address"},{"name":"kind","type":"uint8"},{"name":"sender","type":"address"},
		{"name":"messageDataHash","type":"bytes32"},{"name":"baseFeeL1","type":"uint256"},{"name":"timestamp","type":"uint64"}]},
	{"type":"event","name":"InboxMessageDelivered","inputs":[
		{"name":"messageNum","type":"uint256","indexed":true},{"name":"data","type":"bytes"}]},
	{"type":"event","name":"L2ToL1Tx","inputs":[
		{"name":"caller","type":"address"},{"name":"destination","type":"address","indexed":true},
		{"name":"hash","type":"uint256","indexed":true},{"name":"position","type":"uint256","indexed":true},
		{"name":"arbBlockNum","type":"uint256"},{"name":"ethBlockNum","type":"uint256"},{"name":"timestamp","type":"uint256"},
		{"name":"callvalue","type":"uint256"},{"name":"data","type":"bytes"}]},
	{"type":"event","name":"OutBoxTransactionExecuted","inputs":[
		{"name":"to","type":"address","indexed":true},{"name":"l2Sender","type":"address","indexed":true},
		{"name":"zero","type":"uint256","indexed":true},{"name":"transactionIndex","type":"uint256"}]}
]`

var arbitrumABI = mustABI(arbitrumEventsJSON)

// Inbox message kinds.
const (
	arbKindSubmitRetryable = 9
	arbKindEthDeposit      = 12
)

// L2 transaction types created by the sequencer for L1 messages.
const (
	arbTxTypeDeposit   = 0x64
	arbTxTypeRetryable = 0x69
)

const (
	retryableDataMinLen  = 9 * 32
	ethDepositDataMinLen = 20 + 32
)

// DefaultArbSys is the ArbSys precompile address.
const DefaultArbSys = "0x0000000000000000000000000000000000000064"

// RetryableTicket holds the fields committed to by a retryable ticket id.
type RetryableTicket struct {
	ChainID          *big.Int
	MessageNumber    *big.Int
	From             common.Address // aliased L1 sender
	L1BaseFee        *big.Int
	L1Value          *big.Int
	MaxFeePerGas     *big.Int
	GasLimit         *big.Int
	Dest             common.Address
	L2CallValue      *big.Int
	CallValueRefund  common.Address
	MaxSubmissionFee *big.Int
	ExcessFeeRefund  common.Address
	Data             []byte
}

// ID returns the L2 hash of the submit-retryable transaction.
func (t *RetryableTicket) ID() (common.Hash, error) {
	return hashEncoding(t.Encode())
}

// Encode returns the type-prefixed RLP encoding of the ticket.
func (t *RetryableTicket) Encode() ([]byte, error) {
	// A zero destination encodes as an empty string, not 20 zero bytes.
	dest := []byte{}
	if t.Dest != (common.Address{}) {
		dest = t.Dest.Bytes()
	}
	fields := []any{
		t.ChainID,
		common.LeftPadBytes(t.MessageNumber.Bytes(), 32),
		t.From,
		t.L1BaseFee,
		t.L1Value,
		t.MaxFeePerGas,
		t.GasLimit,
		dest,
		t.L2CallValue,
		t.CallValueRefund,
		t.MaxSubmissionFee,
		t.ExcessFeeRefund,
		t.Data,
	}
	return typedEncoding(arbTxTypeRetryable, fields)
}

// EthDeposit holds the fields committed to by an ETH deposit id.
type EthDeposit struct {
	ChainID       *big.Int
	MessageNumber *big.Int
	From          common.Address
	To            common.Address
	Value         *big.Int
}

// ID returns the L2 hash of the deposit transaction.
func (d *EthDeposit) ID() (common.Hash, error) {
	return hashEncoding(d.Encode())
}

// Encode returns the type-prefixed RLP encoding of the deposit.
func (d *EthDeposit) Encode() ([]byte, error) {
	fields := []any{
		d.ChainID,
		common.LeftPadBytes(d.MessageNumber.Bytes(), 32),
		d.From,
		d.To,
		d.Value,
	}
	return typedEncoding(arbTxTypeDeposit, fields)
}

func typedEncoding(txType byte, fields any) ([]byte, error) {
	enc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, err
	}
	return append([]byte{txType}, enc...), nil
}

func hashEncoding(enc []byte, err error) (common.Hash, error) {
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// ParseRetryableData decodes InboxMessageDelivered data of a kind 9 message.
func ParseRetryableData(data []byte) (*RetryableTicket, error) {
	if len(data) < retryableDataMinLen {
		return nil, fmt.Errorf("%w: retryable data is %d bytes, need %d", ErrTruncatedPayload, len(data), retryableDataMinLen)
	}
	word := func(i int) []byte { return data[i*32 : (i+1)*32] }
	num := func(i int) *big.Int { return new(big.Int).SetBytes(word(i)) }
	addr := func(i int) common.Address { return common.BytesToAddress(word(i)[12:]) }

	dataLen := num(8)
	if !dataLen.IsUint64() || uint64(len(data)-retryableDataMinLen) < dataLen.Uint64() {
		return nil, fmt.Errorf("%w: retryable calldata length %s exceeds payload", ErrTruncatedPayload, dataLen)
	}
	n := int(dataLen.Uint64())

	return &RetryableTicket{
		Dest:             addr(0),
		L2CallValue:      num(1),
		L1Value:          num(2),
		MaxSubmissionFee: num(3),
		ExcessFeeRefund:  addr(4),
		CallValueRefund:  addr(5),
		GasLimit:         num(6),
		MaxFeePerGas:     num(7),
		Data:             common.CopyBytes(data[retryableDataMinLen : retryableDataMinLen+n]),
	}, nil
}

// ParseEthDepositData decodes InboxMessageDelivered data of a kind 12 message.
func ParseEthDepositData(data []byte) (common.Address, *big.Int, error) {
	if len(data) < ethDepositDataMinLen {
		return common.Address{}, nil, fmt.Errorf("%w: eth deposit data is %d bytes, need %d", ErrTruncatedPayload, len(data), ethDepositDataMinLen)
	}
	return common.BytesToAddress(data[:20]), new(big.Int).SetBytes(data[20:52]), nil
}

type arbitrum struct {
	layer   Layer
	chainID *big.Int

	bridge string
	inbox  string
	outbox string
	arbSys string
}

// NewArbitrum builds the Arbitrum decoder. On L1 it needs the bridge and
// inbox contracts; on L2 it watches sequencer-created transactions and ArbSys.
func NewArbitrum(p Params) (Decoder, error) {
	d := &arbitrum{layer: p.Layer, chainID: new(big.Int).SetUint64(p.ChainID)}
	switch p.Layer {
	case LayerL1:
		if p.ChainID == 0 {
			return nil, fmt.Errorf("arbitrum l1 decoder needs the l2 chain id")
		}
		var err error
		if d.bridge, err = p.contract("bridge"); err != nil {
			return nil, err
		}
		if d.inbox, err = p.contract("inbox"); err != nil {
			return nil, err
		}
		d.outbox = p.optionalContract("outbox")
	case LayerL2:
		d.arbSys = p.optionalContract("arbsys")
		if d.arbSys == "" {
			d.arbSys = DefaultArbSys
		}
	default:
		return nil, fmt.Errorf("unknown layer %q", p.Layer)
	}
	return d, nil
}

func (d *arbitrum) Name() string { return "arbitrum_" + string(d.layer) }

func (d *arbitrum) Decode(tx *Tx) (Result, error) {
	if d.layer == LayerL1 {
		return d.decodeL1(tx)
	}
	return d.decodeL2(tx)
}

type arbDelivered struct {
	kind      uint8
	sender    common.Address
	baseFeeL1 *big.Int
}

func (d *arbitrum) decodeL1(tx *Tx) (Result, error) {
	var res Result

	delivered := make(map[string]arbDelivered)
	for _, l := range logsFrom(tx.Logs, d.bridge) {
		if !isTopic(l, arbitrumABI.Events["MessageDelivered"]) {
			continue
		}
		args, err := unpackLog(arbitrumABI.Events["MessageDelivered"], l)
		if err != nil {
			return res, err
		}
		delivered[topicHash(l, 1).Hex()] = arbDelivered{
			kind:      args[1].(uint8),
			sender:    args[2].(common.Address),
			baseFeeL1: args[4].(*big.Int),
		}
	}

	for _, l := range logsFrom(tx.Logs, d.inbox) {
		if !isTopic(l, arbitrumABI.Events["InboxMessageDelivered"]) {
			continue
		}
		msgNum := topicHash(l, 1)
		md, ok := delivered[msgNum.Hex()]
		if !ok {
			continue
		}
		args, err := unpackLog(arbitrumABI.Events["InboxMessageDelivered"], l)
		if err != nil {
			return res, err
		}
		rec, err := d.inboxMessage(tx, msgNum.Big(), md, args[0].([]byte))
		if err != nil {
			return res, err
		}
		if rec != nil {
			res.Transactions = append(res.Transactions, *rec)
		}
	}

	if d.outbox != "" {
		ev := arbitrumABI.Events["OutBoxTransactionExecuted"]
		for _, l := range logsFrom(tx.Logs, d.outbox) {
			if !isTopic(l, ev) {
				continue
			}
			args, err := unpackLog(ev, l)
			if err != nil {
				return res, err
			}
			position := common.BigToHash(args[0].(*big.Int))
			res.Transactions = append(res.Transactions, domain.BridgeTransaction{
				MsgHash:           strings.ToLower(position.Hex()),
				Family:            domain.BridgeArbitrum,
				Direction:         directionPtr(domain.BridgeWithdrawal),
				Index:             domain.Ptr(args[0].(*big.Int).String()),
				L1TransactionHash: domain.Ptr(tx.Transaction.Hash),
				L1BlockNumber:     domain.Ptr(tx.Block.Number),
				L1Timestamp:       domain.Ptr(tx.Block.Timestamp),
				Status:            domain.Ptr("finalized"),
			})
		}
	}
	return res, nil
}

func (d *arbitrum) inboxMessage(tx *Tx, msgNum *big.Int, md arbDelivered, data []byte) (*domain.BridgeTransaction, error) {
	rec := domain.BridgeTransaction{
		Family:            domain.BridgeArbitrum,
		Direction:         directionPtr(domain.BridgeDeposit),
		Index:             domain.Ptr(msgNum.String()),
		L1TransactionHash: domain.Ptr(tx.Transaction.Hash),
		L1BlockNumber:     domain.Ptr(tx.Block.Number),
		L1Timestamp:       domain.Ptr(tx.Block.Timestamp),
		L1From:            domain.Ptr(tx.Transaction.From),
		Status:            domain.Ptr("initiated"),
	}

	switch md.kind {
	case arbKindSubmitRetryable:
		ticket, err := ParseRetryableData(data)
		if err != nil {
			return nil, err
		}
		ticket.ChainID = d.chainID
		ticket.MessageNumber = msgNum
		ticket.From = md.sender
		ticket.L1BaseFee = md.baseFeeL1
		id, err := ticket.ID()
		if err != nil {
			return nil, err
		}

		call, err := DecodeRemoteCall(ticket.Data)
		if err != nil {
			return nil, err
		}
		rec.MsgHash = strings.ToLower(id.Hex())
		rec.MessageKind = domain.Ptr("retryable")
		rec.L2To = domain.Ptr(lowerHex(ticket.Dest))
		rec.Amount = domain.Ptr(ticket.L2CallValue.String())
		if call.Known() {
			rec.L2To = domain.Ptr(lowerHex(call.To))
			rec.L1TokenAddress = domain.Ptr(lowerHex(call.RemoteToken))
			rec.Amount = domain.Ptr(call.Amount.String())
		}
		return &rec, nil

	case arbKindEthDeposit:
		to, value, err := ParseEthDepositData(data)
		if err != nil {
			return nil, err
		}
		dep := EthDeposit{ChainID: d.chainID, MessageNumber: msgNum, From: md.sender, To: to, Value: value}
		id, err := dep.ID()
		if err != nil {
			return nil, err
		}
		rec.MsgHash = strings.ToLower(id.Hex())
		rec.MessageKind = domain.Ptr("eth_deposit")
		rec.L2To = domain.Ptr(lowerHex(to))
		rec.Amount = domain.Ptr(value.String())
		return &rec, nil
	}
	return nil, nil
}

func (d *arbitrum) decodeL2(tx *Tx) (Result, error) {
	var res Result

	switch tx.Transaction.Type {
	case arbTxTypeRetryable, arbTxTypeDeposit:
		status := "relayed"
		if s := tx.Transaction.ReceiptStatus; s != nil && *s == 0 {
			status = "failed"
		}
		res.Transactions = append(res.Transactions, domain.BridgeTransaction{
			MsgHash:           tx.Transaction.Hash,
			Family:            domain.BridgeArbitrum,
			Direction:         directionPtr(domain.BridgeDeposit),
			L2TransactionHash: domain.Ptr(tx.Transaction.Hash),
			L2BlockNumber:     domain.Ptr(tx.Block.Number),
			L2Timestamp:       domain.Ptr(tx.Block.Timestamp),
			Status:            domain.Ptr(status),
		})
	}

	ev := arbitrumABI.Events["L2ToL1Tx"]
	for _, l := range logsFrom(tx.Logs, d.arbSys) {
		if !isTopic(l, ev) {
			continue
		}
		args, err := unpackLog(ev, l)
		if err != nil {
			return res, err
		}
		position := topicHash(l, 3)
		rec := domain.BridgeTransaction{
			MsgHash:           strings.ToLower(position.Hex()),
			Family:            domain.BridgeArbitrum,
			Direction:         directionPtr(domain.BridgeWithdrawal),
			MessageKind:       domain.Ptr("l2_to_l1"),
			Index:             domain.Ptr(position.Big().String()),
			L2TransactionHash: domain.Ptr(tx.Transaction.Hash),
			L2BlockNumber:     domain.Ptr(tx.Block.Number),
			L2Timestamp:       domain.Ptr(tx.Block.Timestamp),
			Amount:            domain.Ptr(args[4].(*big.Int).String()),
			Status:            domain.Ptr("initiated"),
		}
		call, err := DecodeRemoteCall(args[5].([]byte))
		if err != nil {
			return res, err
		}
		if call.Known() {
			rec.L1TokenAddress = domain.Ptr(lowerHex(call.RemoteToken))
			rec.Amount = domain.Ptr(call.Amount.String())
		}
		res.Transactions = append(res.Transactions, rec)
	}
	return res, nil
}

package bridge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const lineaEventsJSON = `[
	{"type":"event","name":"MessageSent","inputs":[
		{"name":"_from","type":"address","indexed":true},{"name":"_to","type":"address","indexed":true},
		{"name":"_fee","type":"uint256"},{"name":"_value","type":"uint256"},{"name":"_nonce","type":"uint256"},
		{"name":"_calldata","type":"bytes"},{"name":"_messageHash","type":"bytes32","indexed":true}]},
	{"type":"event","name":"MessageClaimed","inputs":[
		{"name":"_messageHash","type":"bytes32","indexed":true}]}
]`

var lineaABI = mustABI(lineaEventsJSON)

type linea struct {
	layer   Layer
	service string
}

// NewLinea builds the Linea message service decoder. The message hash is
// emitted by the contract itself on both sides.
func NewLinea(p Params) (Decoder, error) {
	if p.Layer != LayerL1 && p.Layer != LayerL2 {
		return nil, fmt.Errorf("unknown layer %q", p.Layer)
	}
	addr, err := p.contract("message_service")
	if err != nil {
		return nil, err
	}
	return &linea{layer: p.Layer, service: addr}, nil
}

func (d *linea) Name() string { return "linea_" + string(d.layer) }

func (d *linea) Decode(tx *Tx) (Result, error) {
	var res Result
	for _, l := range logsFrom(tx.Logs, d.service) {
		switch {
		case isTopic(l, lineaABI.Events["MessageSent"]):
			if len(l.Topics) < 4 {
				return res, fmt.Errorf("%w: MessageSent has %d topics", ErrTruncatedPayload, len(l.Topics))
			}
			args, err := unpackLog(lineaABI.Events["MessageSent"], l)
			if err != nil {
				return res, err
			}
			dir := domain.BridgeDeposit
			if d.layer == LayerL2 {
				dir = domain.BridgeWithdrawal
			}
			rec := d.record(tx, topicHash(l, 3).Hex(), dir, "initiated")
			rec.MessageKind = domain.Ptr("message")
			rec.Index = domain.Ptr(args[2].(*big.Int).String())
			rec.Amount = domain.Ptr(args[1].(*big.Int).String())
			rec.L2To = domain.Ptr(strings.ToLower(topicAddress(l, 2)))
			res.Transactions = append(res.Transactions, rec)

		case isTopic(l, lineaABI.Events["MessageClaimed"]):
			if len(l.Topics) < 2 {
				return res, fmt.Errorf("%w: MessageClaimed has %d topics", ErrTruncatedPayload, len(l.Topics))
			}
			dir := domain.BridgeWithdrawal
			if d.layer == LayerL2 {
				dir = domain.BridgeDeposit
			}
			res.Transactions = append(res.Transactions, d.record(tx, topicHash(l, 1).Hex(), dir, "claimed"))
		}
	}
	return res, nil
}

func (d *linea) record(tx *Tx, msgHash string, dir domain.BridgeDirection, status string) domain.BridgeTransaction {
	rec := domain.BridgeTransaction{
		MsgHash:   strings.ToLower(msgHash),
		Family:    domain.BridgeLinea,
		Direction: directionPtr(dir),
		Status:    domain.Ptr(status),
	}
	if d.layer == LayerL1 {
		rec.L1TransactionHash = domain.Ptr(tx.Transaction.Hash)
		rec.L1BlockNumber = domain.Ptr(tx.Block.Number)
		rec.L1Timestamp = domain.Ptr(tx.Block.Timestamp)
	} else {
		rec.L2TransactionHash = domain.Ptr(tx.Transaction.Hash)
		rec.L2BlockNumber = domain.Ptr(tx.Block.Number)
		rec.L2Timestamp = domain.Ptr(tx.Block.Timestamp)
	}
	return rec
}

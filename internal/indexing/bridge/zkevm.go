package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const zkevmEventsJSON = `[
	{"type":"event","name":"BridgeEvent","inputs":[
		{"name":"leafType","type":"uint8"},{"name":"originNetwork","type":"uint32"},{"name":"originAddress","type":"address"},
		{"name":"destinationNetwork","type":"uint32"},{"name":"destinationAddress","type":"address"},
		{"name":"amount","type":"uint256"},{"name":"metadata","type":"bytes"},{"name":"depositCount","type":"uint32"}]},
	{"type":"event","name":"ClaimEvent","inputs":[
		{"name":"globalIndex","type":"uint256"},{"name":"originNetwork","type":"uint32"},{"name":"originAddress","type":"address"},
		{"name":"destinationAddress","type":"address"},{"name":"amount","type":"uint256"}]}
]`

var zkevmABI = mustABI(zkevmEventsJSON)

const zkevmMainnetFlag = 64

// ZkEVMMessageHash keys a message by the network it left and the deposit
// count of that network's bridge.
func ZkEVMMessageHash(network, depositCount uint32) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], network)
	binary.BigEndian.PutUint32(buf[4:8], depositCount)
	return crypto.Keccak256Hash(buf[:])
}

// SplitGlobalIndex returns the source network and deposit count packed in a
// claim's global index. Bit 64 marks mainnet; otherwise bits 32-63 hold the
// rollup index, whose network id is one higher.
func SplitGlobalIndex(globalIndex *big.Int) (network, depositCount uint32) {
	depositCount = uint32(new(big.Int).And(globalIndex, big.NewInt(0xffffffff)).Uint64())
	if globalIndex.Bit(zkevmMainnetFlag) == 1 {
		return 0, depositCount
	}
	rollup := uint32(new(big.Int).And(new(big.Int).Rsh(globalIndex, 32), big.NewInt(0xffffffff)).Uint64())
	return rollup + 1, depositCount
}

type zkevm struct {
	network uint32
	bridge  string
}

// NewZkEVM builds the Polygon zkEVM decoder for the chain with the given
// bridge network id; 0 is L1.
func NewZkEVM(p Params) (Decoder, error) {
	addr, err := p.contract("bridge")
	if err != nil {
		return nil, err
	}
	return &zkevm{network: p.NetworkID, bridge: addr}, nil
}

func (d *zkevm) Name() string { return fmt.Sprintf("zkevm_%d", d.network) }

func (d *zkevm) Decode(tx *Tx) (Result, error) {
	var res Result
	for _, l := range logsFrom(tx.Logs, d.bridge) {
		switch {
		case isTopic(l, zkevmABI.Events["BridgeEvent"]):
			args, err := unpackLog(zkevmABI.Events["BridgeEvent"], l)
			if err != nil {
				return res, err
			}
			rec := d.record(tx, d.network, args[7].(uint32), "initiated")
			rec.MessageKind = domain.Ptr("bridge")
			rec.Index = domain.Ptr(fmt.Sprint(args[7].(uint32)))
			d.setToken(&rec, args[1].(uint32), args[2].(common.Address), args[5].(*big.Int))
			rec.L2To = domain.Ptr(lowerHex(args[4].(common.Address)))
			res.Transactions = append(res.Transactions, rec)

		case isTopic(l, zkevmABI.Events["ClaimEvent"]):
			args, err := unpackLog(zkevmABI.Events["ClaimEvent"], l)
			if err != nil {
				return res, err
			}
			src, count := SplitGlobalIndex(args[0].(*big.Int))
			rec := d.record(tx, src, count, "claimed")
			d.setToken(&rec, args[1].(uint32), args[2].(common.Address), args[4].(*big.Int))
			res.Transactions = append(res.Transactions, rec)
		}
	}
	return res, nil
}

// record creates a message keyed by its source network. Messages leaving L1
// are deposits; the fields filled are those of the chain being decoded.
func (d *zkevm) record(tx *Tx, source, depositCount uint32, status string) domain.BridgeTransaction {
	dir := domain.BridgeWithdrawal
	if source == 0 {
		dir = domain.BridgeDeposit
	}
	rec := domain.BridgeTransaction{
		MsgHash:   strings.ToLower(ZkEVMMessageHash(source, depositCount).Hex()),
		Family:    domain.BridgeZkEVM,
		Direction: directionPtr(dir),
		Status:    domain.Ptr(status),
	}
	if d.network == 0 {
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

func (d *zkevm) setToken(rec *domain.BridgeTransaction, originNetwork uint32, origin common.Address, amount *big.Int) {
	rec.Amount = domain.Ptr(amount.String())
	if originNetwork == 0 {
		rec.L1TokenAddress = domain.Ptr(lowerHex(origin))
	} else {
		rec.L2TokenAddress = domain.Ptr(lowerHex(origin))
	}
}

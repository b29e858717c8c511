package bridge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const remoteCallJSON = `[
	{"type":"function","name":"relayMessage","inputs":[
		{"name":"_nonce","type":"uint256"},{"name":"_sender","type":"address"},{"name":"_target","type":"address"},
		{"name":"_value","type":"uint256"},{"name":"_minGasLimit","type":"uint256"},{"name":"_message","type":"bytes"}]},
	{"type":"function","name":"finalizeBridgeETH","inputs":[
		{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"},
		{"name":"_extraData","type":"bytes"}]},
	{"type":"function","name":"finalizeBridgeERC20","inputs":[
		{"name":"_localToken","type":"address"},{"name":"_remoteToken","type":"address"},{"name":"_from","type":"address"},
		{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_extraData","type":"bytes"}]},
	{"type":"function","name":"finalizeBridgeERC721","inputs":[
		{"name":"_localToken","type":"address"},{"name":"_remoteToken","type":"address"},{"name":"_from","type":"address"},
		{"name":"_to","type":"address"},{"name":"_tokenId","type":"uint256"},{"name":"_extraData","type":"bytes"}]},
	{"type":"function","name":"finalizeDeposit","inputs":[
		{"name":"_l1Token","type":"address"},{"name":"_l2Token","type":"address"},{"name":"_from","type":"address"},
		{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_data","type":"bytes"}]},
	{"type":"function","name":"finalizeInboundTransfer","inputs":[
		{"name":"_token","type":"address"},{"name":"_from","type":"address"},{"name":"_to","type":"address"},
		{"name":"_amount","type":"uint256"},{"name":"_data","type":"bytes"}]}
]`

var remoteCallABI = mustABI(remoteCallJSON)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RemoteCall is the token movement encoded in a bridge finalization call.
// Token addresses are as seen from the chain executing the call.
type RemoteCall struct {
	Method      string
	From        common.Address
	To          common.Address
	LocalToken  common.Address
	RemoteToken common.Address
	Amount      *big.Int
}

// Known reports whether the selector was recognised.
func (c RemoteCall) Known() bool { return c.Method != "" }

type remoteCallHandler func(args []any) RemoteCall

var remoteCallHandlers = map[string]remoteCallHandler{
	"finalizeBridgeETH": func(a []any) RemoteCall {
		return RemoteCall{From: a[0].(common.Address), To: a[1].(common.Address), Amount: a[2].(*big.Int)}
	},
	"finalizeBridgeERC20":  tokenBridgeCall,
	"finalizeBridgeERC721": tokenBridgeCall,
	"finalizeDeposit":      tokenBridgeCall,
	"finalizeInboundTransfer": func(a []any) RemoteCall {
		return RemoteCall{
			RemoteToken: a[0].(common.Address),
			From:        a[1].(common.Address),
			To:          a[2].(common.Address),
			Amount:      a[3].(*big.Int),
		}
	},
}

func tokenBridgeCall(a []any) RemoteCall {
	return RemoteCall{
		LocalToken:  a[0].(common.Address),
		RemoteToken: a[1].(common.Address),
		From:        a[2].(common.Address),
		To:          a[3].(common.Address),
		Amount:      a[4].(*big.Int),
	}
}

// DecodeRemoteCall decodes bridge finalization calldata. relayMessage is
// unwrapped one level. Unknown or missing selectors yield a zero placeholder;
// a known selector with short arguments is ErrTruncatedPayload.
func DecodeRemoteCall(data []byte) (RemoteCall, error) {
	placeholder := RemoteCall{Amount: new(big.Int)}
	if len(data) < 4 {
		return placeholder, nil
	}

	method, err := remoteCallABI.MethodById(data[:4])
	if err != nil {
		return placeholder, nil
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return RemoteCall{}, fmt.Errorf("%w: %s: %v", ErrTruncatedPayload, method.Name, err)
	}

	if method.Name == "relayMessage" {
		inner, err := DecodeRemoteCall(args[5].([]byte))
		if err != nil {
			return RemoteCall{}, err
		}
		if !inner.Known() {
			inner.From = args[1].(common.Address)
			inner.To = args[2].(common.Address)
			inner.Amount = args[3].(*big.Int)
		}
		inner.Method = "relayMessage/" + inner.Method
		return inner, nil
	}

	call := remoteCallHandlers[method.Name](args)
	call.Method = method.Name
	return call, nil
}

// unpackLog decodes the non-indexed fields of ev from a log's data.
func unpackLog(ev abi.Event, l domain.Log) ([]any, error) {
	data, err := hexData(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ev.Name, err)
	}
	args := ev.Inputs.NonIndexed()
	if len(data) < 32*len(args) {
		return nil, fmt.Errorf("%w: %s data is %d bytes", ErrTruncatedPayload, ev.Name, len(data))
	}
	out, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTruncatedPayload, ev.Name, err)
	}
	return out, nil
}

func hexData(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}

func lowerHex(a common.Address) string { return strings.ToLower(a.Hex()) }

func isTopic(l domain.Log, ev abi.Event) bool {
	return len(l.Topics) > 0 && l.Topics[0] == strings.ToLower(ev.ID.Hex())
}

func topicHash(l domain.Log, i int) common.Hash { return common.HexToHash(l.Topic(i)) }

func topicAddress(l domain.Log, i int) string {
	return lowerHex(common.BytesToAddress(topicHash(l, i).Bytes()[12:]))
}

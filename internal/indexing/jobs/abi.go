package jobs

import (
	"bytes"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20JSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc1155JSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	erc20ABI   = mustABI(erc20JSON)
	erc1155ABI = mustABI(erc1155JSON)

	topicTransfer       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()
	topicTransferSingle = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)")).Hex()
	topicTransferBatch  = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])")).Hex()

	uint256Ty, _      = abi.NewType("uint256", "", nil)
	uint256ArrayTy, _ = abi.NewType("uint256[]", "", nil)

	singleArgs = abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}}
	batchArgs  = abi.Arguments{{Type: uint256ArrayTy}, {Type: uint256ArrayTy}}
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// topicAddress extracts the address packed in the low 20 bytes of a topic.
func topicAddress(topic string) string {
	h := common.HexToHash(topic)
	return strings.ToLower(common.BytesToAddress(h[12:]).Hex())
}

func topicUint(topic string) *big.Int {
	return common.HexToHash(topic).Big()
}

// unpackString decodes a string return value, accepting the bytes32 encoding
// used by some early tokens.
func unpackString(method string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if out, err := erc20ABI.Unpack(method, data); err == nil && len(out) == 1 {
		if s, ok := out[0].(string); ok && utf8.ValidString(s) {
			return strings.ToValidUTF8(strings.TrimRight(s, "\x00"), "")
		}
	}
	if len(data) == 32 {
		s := string(bytes.TrimRight(data, "\x00"))
		if utf8.ValidString(s) {
			return s
		}
	}
	return ""
}

func unpackDecimals(data []byte) *uint8 {
	out, err := erc20ABI.Unpack("decimals", data)
	if err != nil || len(out) != 1 {
		return nil
	}
	d, ok := out[0].(uint8)
	if !ok {
		return nil
	}
	return &d
}

func unpackBalance(data []byte) (*big.Int, bool) {
	out, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil || len(out) != 1 {
		return nil, false
	}
	b, ok := out[0].(*big.Int)
	return b, ok
}

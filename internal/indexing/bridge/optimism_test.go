package bridge

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vietddude/chainetl/internal/core/domain"
)

const (
	opPortal = "0xbeb5fc579115071764c7423a4f12edde41f106ed"
	opOracle = "0xdfe97868233d1aa22e815a266982f2cf17685a27"
)

func packOpaque(mint, value *big.Int, gas uint64, creation bool, data []byte) []byte {
	out := common.LeftPadBytes(mint.Bytes(), 32)
	out = append(out, common.LeftPadBytes(value.Bytes(), 32)...)
	var g [8]byte
	binary.BigEndian.PutUint64(g[:], gas)
	out = append(out, g[:]...)
	if creation {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return append(out, data...)
}

func TestUserDepositSourceHash(t *testing.T) {
	blockHash := common.HexToHash("0xc0ffee")
	logIndex := uint64(0x1234)

	inner := crypto.Keccak256(blockHash.Bytes(), common.LeftPadBytes(new(big.Int).SetUint64(logIndex).Bytes(), 32))
	want := crypto.Keccak256Hash(make([]byte, 32), inner)

	if got := UserDepositSourceHash(blockHash, logIndex); got != want {
		t.Errorf("source hash = %s, want %s", got.Hex(), want.Hex())
	}
	if UserDepositSourceHash(blockHash, logIndex+1) == want {
		t.Error("log index must change the source hash")
	}
}

func TestDepositTx_Hash(t *testing.T) {
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	sourceHash := common.HexToHash("0xaa")

	tests := []struct {
		name   string
		opaque *OpaqueDeposit
		wantTo []byte
		wantMt []byte
	}{
		{
			name:   "call with mint",
			opaque: &OpaqueDeposit{Mint: big.NewInt(10), Value: big.NewInt(10), Gas: 100000, Data: []byte{0x01}},
			wantTo: to.Bytes(),
			wantMt: []byte{10},
		},
		{
			name:   "creation without mint",
			opaque: &OpaqueDeposit{Mint: new(big.Int), Value: new(big.Int), Gas: 21000, IsCreation: true},
			wantTo: []byte{},
			wantMt: []byte{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep := NewDepositTx(common.Hash{}, 0, from, to, tt.opaque)
			dep.SourceHash = sourceHash

			enc, err := rlp.EncodeToBytes([]any{
				sourceHash, from, tt.wantTo, tt.wantMt, tt.opaque.Value, tt.opaque.Gas, false, tt.opaque.Data,
			})
			if err != nil {
				t.Fatal(err)
			}
			want := crypto.Keccak256Hash([]byte{0x7e}, enc)

			got, err := dep.Hash()
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("hash = %s, want %s", got.Hex(), want.Hex())
			}
		})
	}
}

func TestDepositTx_KnownHashes(t *testing.T) {
	blockHash := common.HexToHash("0xabcdef0000000000000000000000000000000000000000000000000000000001")
	from := common.HexToAddress("0x3333333333333333333333333333333333333333")
	to := common.HexToAddress("0x4444444444444444444444444444444444444444")

	if got := UserDepositSourceHash(blockHash, 7); got != common.HexToHash("0x59992b08d981a6f6f2ceec7b1202d1a4e5810753b56207fec24e0d362d5e7029") {
		t.Errorf("source hash = %s", got.Hex())
	}

	tests := []struct {
		name     string
		logIndex uint64
		opaque   *OpaqueDeposit
		want     string
	}{
		{
			name:     "call",
			logIndex: 7,
			opaque:   &OpaqueDeposit{Mint: new(big.Int), Value: big.NewInt(5), Gas: 100000, Data: []byte{0x01, 0x02, 0x03}},
			want:     "0x7cf0c058409f1bf7343cb0094437629e9dd9e06e7d2ef2b1b2ad26bbeeb6fd0b",
		},
		{
			name:     "creation with mint",
			logIndex: 0,
			opaque:   &OpaqueDeposit{Mint: big.NewInt(9), Value: new(big.Int), Gas: 21000, IsCreation: true},
			want:     "0x8f936bd6de63c5151ae22611eb3c84f2f77b2efe714244cbb5eb39b49cdfa37a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDepositTx(blockHash, tt.logIndex, from, to, tt.opaque).Hash()
			if err != nil {
				t.Fatal(err)
			}
			if got != common.HexToHash(tt.want) {
				t.Errorf("hash = %s, want %s", got.Hex(), tt.want)
			}
		})
	}
}

func TestParseOpaqueData(t *testing.T) {
	o, err := ParseOpaqueData(packOpaque(big.NewInt(5), big.NewInt(6), 7, true, []byte{0xab}))
	if err != nil {
		t.Fatal(err)
	}
	if o.Mint.Int64() != 5 || o.Value.Int64() != 6 || o.Gas != 7 || !o.IsCreation || len(o.Data) != 1 {
		t.Errorf("unexpected parse: %+v", o)
	}

	if _, err := ParseOpaqueData(make([]byte, 72)); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("expected ErrTruncatedPayload, got %v", err)
	}
}

func opL1(t *testing.T) Decoder {
	t.Helper()
	d, err := NewOptimism(Params{Layer: LayerL1, Contracts: map[string]string{"portal": opPortal, "output_oracle": opOracle}})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestOptimismL1_Deposit(t *testing.T) {
	from := common.HexToAddress("0x36bde71c97b33cc4729cf772ae268934f7ab70b2")
	to := common.HexToAddress("0x4200000000000000000000000000000000000007")
	opaque := packOpaque(big.NewInt(1e16), big.NewInt(1e16), 200000, false, []byte{})

	tx := testTx("0x" + strings.Repeat("07", 32))
	l := mkLog(t, opPortal, optimismABI.Events["TransactionDeposited"],
		[]common.Hash{addrTopic(from), addrTopic(to), {}}, opaque)
	l.LogIndex = 17
	tx.Logs = []domain.Log{l}

	res, err := opL1(t).Decode(tx)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Transactions))
	}

	parsed, _ := ParseOpaqueData(opaque)
	want, _ := NewDepositTx(common.HexToHash(l.BlockHash), 17, from, to, parsed).Hash()
	rec := res.Transactions[0]
	if rec.MsgHash != strings.ToLower(want.Hex()) {
		t.Errorf("MsgHash = %s, want %s", rec.MsgHash, want.Hex())
	}
	if *rec.Amount != "10000000000000000" || *rec.L2To != strings.ToLower(to.Hex()) {
		t.Errorf("unexpected record: amount=%s to=%s", *rec.Amount, *rec.L2To)
	}
}

func TestOptimismL1_DepositWithBridgeCall(t *testing.T) {
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	recipient := common.HexToAddress("0x03")
	l1Token := common.HexToAddress("0x04")
	l2Token := common.HexToAddress("0x05")

	finalize, _ := remoteCallABI.Pack("finalizeBridgeERC20", l2Token, l1Token, from, recipient, big.NewInt(42), []byte{})
	relay, _ := remoteCallABI.Pack("relayMessage", big.NewInt(1), from, to, big.NewInt(0), big.NewInt(0), finalize)
	opaque := packOpaque(new(big.Int), new(big.Int), 300000, false, relay)

	tx := testTx("0x08")
	tx.Logs = []domain.Log{mkLog(t, opPortal, optimismABI.Events["TransactionDeposited"],
		[]common.Hash{addrTopic(from), addrTopic(to), {}}, opaque)}

	res, err := opL1(t).Decode(tx)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	rec := res.Transactions[0]
	if *rec.Amount != "42" || *rec.L1TokenAddress != strings.ToLower(l1Token.Hex()) ||
		*rec.L2TokenAddress != strings.ToLower(l2Token.Hex()) || *rec.L2To != strings.ToLower(recipient.Hex()) {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestOptimismL1_TruncatedOpaqueFails(t *testing.T) {
	tx := testTx("0x09")
	tx.Logs = []domain.Log{mkLog(t, opPortal, optimismABI.Events["TransactionDeposited"],
		[]common.Hash{{}, {}, {}}, make([]byte, 40))}

	if _, err := opL1(t).Decode(tx); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestOptimismL1_WithdrawalsAndOutputs(t *testing.T) {
	wh := common.HexToHash("0xabcdef")
	root := common.HexToHash("0x1111")

	tx := testTx("0x0a")
	tx.Logs = []domain.Log{
		mkLog(t, opPortal, optimismABI.Events["WithdrawalProven"], []common.Hash{wh, {}, {}}),
		mkLog(t, opPortal, optimismABI.Events["WithdrawalFinalized"], []common.Hash{wh}, false),
		mkLog(t, opOracle, optimismABI.Events["OutputProposed"],
			[]common.Hash{root, uintTopic(3), uintTopic(5000)}, big.NewInt(1700000000)),
	}

	res, err := opL1(t).Decode(tx)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Transactions) != 2 || len(res.StateBatches) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if *res.Transactions[0].Status != "proven" || *res.Transactions[1].Status != "failed" {
		t.Errorf("unexpected statuses %s/%s", *res.Transactions[0].Status, *res.Transactions[1].Status)
	}
	for _, r := range res.Transactions {
		if r.MsgHash != strings.ToLower(wh.Hex()) {
			t.Errorf("MsgHash = %s", r.MsgHash)
		}
	}
	sb := res.StateBatches[0]
	if sb.BatchIndex != 3 || sb.L2BlockNumber != 5000 || sb.Root != strings.ToLower(root.Hex()) {
		t.Errorf("unexpected state batch: %+v", sb)
	}
}

func TestOptimismL2_MessagePassed(t *testing.T) {
	d, err := NewOptimism(Params{Layer: LayerL2})
	if err != nil {
		t.Fatal(err)
	}

	nonce := new(big.Int).Lsh(big.NewInt(1), 240)
	sender := common.HexToAddress("0x4200000000000000000000000000000000000007")
	target := common.HexToAddress("0x25ace71c97b33cc4729cf772ae268934f7ab5fa1")
	value, gasLimit := big.NewInt(5), big.NewInt(100000)
	data := []byte{0x01, 0x02}

	wh, err := WithdrawalHash(nonce, sender, target, value, gasLimit, data)
	if err != nil {
		t.Fatal(err)
	}

	mk := func(emitted common.Hash) *Tx {
		tx := testTx("0x0b")
		tx.Logs = []domain.Log{mkLog(t, DefaultMsgPasser, optimismABI.Events["MessagePassed"],
			[]common.Hash{common.BigToHash(nonce), addrTopic(sender), addrTopic(target)},
			value, gasLimit, data, [32]byte(emitted))}
		return tx
	}

	res, err := d.Decode(mk(wh))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].MsgHash != strings.ToLower(wh.Hex()) {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := d.Decode(mk(common.HexToHash("0xbad"))); err == nil {
		t.Error("expected error for mismatched withdrawal hash")
	}
}

func TestOptimismL2_DepositTransaction(t *testing.T) {
	d, _ := NewOptimism(Params{Layer: LayerL2})
	tx := testTx("0x0c")
	tx.Transaction.Type = 0x7e

	res, err := d.Decode(tx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].MsgHash != "0x0c" {
		t.Errorf("unexpected result: %+v", res)
	}
}

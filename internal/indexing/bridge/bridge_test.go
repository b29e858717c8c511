package bridge

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/chainetl/internal/core/domain"
)

func mkLog(t *testing.T, addr string, ev abi.Event, topics []common.Hash, args ...any) domain.Log {
	t.Helper()
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		t.Fatalf("pack %s: %v", ev.Name, err)
	}
	l := domain.Log{
		Address:   strings.ToLower(addr),
		Data:      hexutil.Encode(data),
		BlockHash: "0x" + strings.Repeat("ab", 32),
		Topics:    []string{strings.ToLower(ev.ID.Hex())},
	}
	for _, h := range topics {
		l.Topics = append(l.Topics, strings.ToLower(h.Hex()))
	}
	return l
}

func addrTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func uintTopic(n uint64) common.Hash { return common.BigToHash(new(big.Int).SetUint64(n)) }

func testTx(hash string) *Tx {
	return &Tx{
		Block: domain.Block{Number: 100, Hash: "0x" + strings.Repeat("ab", 32), Timestamp: 1700000000},
		Transaction: domain.Transaction{
			Hash:        hash,
			BlockNumber: 100,
			From:        "0x1111111111111111111111111111111111111111",
		},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	want := []string{"arbitrum", "linea", "mantle_da", "optimism", "zkevm"}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	if _, err := r.Build("nope", Params{}); err == nil {
		t.Error("expected error for unknown decoder")
	}
	if _, err := r.Build("arbitrum", Params{Layer: LayerL1, ChainID: 42161}); err == nil {
		t.Error("expected error for missing contracts")
	}

	d, err := r.Build("optimism", Params{Layer: LayerL2})
	if err != nil {
		t.Fatalf("Build optimism l2: %v", err)
	}
	if d.Name() != "optimism_l2" {
		t.Errorf("Name() = %s", d.Name())
	}
}

func TestDecodeRemoteCall(t *testing.T) {
	l2Token := common.HexToAddress("0x4200000000000000000000000000000000000042")
	l1Token := common.HexToAddress("0x4200000000000000000000000000000000000043")
	from := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	erc20, err := remoteCallABI.Pack("finalizeBridgeERC20", l2Token, l1Token, from, to, big.NewInt(500), []byte{})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("known selector", func(t *testing.T) {
		call, err := DecodeRemoteCall(erc20)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if call.Method != "finalizeBridgeERC20" || call.LocalToken != l2Token || call.RemoteToken != l1Token ||
			call.To != to || call.Amount.Int64() != 500 {
			t.Errorf("unexpected call: %+v", call)
		}
	})

	t.Run("wrapped in relayMessage", func(t *testing.T) {
		relay, err := remoteCallABI.Pack("relayMessage", big.NewInt(1), from, to, big.NewInt(0), big.NewInt(200000), erc20)
		if err != nil {
			t.Fatal(err)
		}
		call, err := DecodeRemoteCall(relay)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if call.Method != "relayMessage/finalizeBridgeERC20" || call.Amount.Int64() != 500 {
			t.Errorf("unexpected call: %+v", call)
		}
	})

	t.Run("relayMessage with unknown payload", func(t *testing.T) {
		relay, err := remoteCallABI.Pack("relayMessage", big.NewInt(1), from, to, big.NewInt(7), big.NewInt(0), []byte{0xde, 0xad})
		if err != nil {
			t.Fatal(err)
		}
		call, err := DecodeRemoteCall(relay)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if call.To != to || call.Amount.Int64() != 7 {
			t.Errorf("expected relay target and value, got %+v", call)
		}
	})

	for name, data := range map[string][]byte{
		"empty":            nil,
		"short":            {0x01, 0x02},
		"unknown selector": {0xde, 0xad, 0xbe, 0xef, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			call, err := DecodeRemoteCall(data)
			if err != nil {
				t.Fatalf("expected placeholder, got error %v", err)
			}
			if call.Known() || call.Amount.Sign() != 0 || call.To != (common.Address{}) {
				t.Errorf("expected zero placeholder, got %+v", call)
			}
		})
	}

	t.Run("truncated known selector", func(t *testing.T) {
		_, err := DecodeRemoteCall(erc20[:40])
		if !errors.Is(err, ErrTruncatedPayload) {
			t.Errorf("expected ErrTruncatedPayload, got %v", err)
		}
	})
}

func TestMantleDA(t *testing.T) {
	manager := "0x5bd63a7ecc13b955c4f57e3f12a64c10263c14c1"
	d, err := NewMantleDA(Params{Contracts: map[string]string{"data_layr_service_manager": manager}})
	if err != nil {
		t.Fatal(err)
	}

	header := common.HexToHash("0x1234")
	tx := testTx("0xaaaa")
	tx.Logs = []domain.Log{mkLog(t, manager, mantleABI.Events["ConfirmDataStore"], nil, uint32(77), [32]byte(header))}

	res, err := d.Decode(tx)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.DABatches) != 1 {
		t.Fatalf("expected 1 DA batch, got %d", len(res.DABatches))
	}
	b := res.DABatches[0]
	if b.DataStoreID != 77 || b.HeaderHash != strings.ToLower(header.Hex()) || b.L1BlockNumber != 100 {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestLinea(t *testing.T) {
	service := "0xd19d4b5d358258f05d7b411e21a1460d11b0876f"
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	msgHash := common.HexToHash("0xfeed")

	l1, err := NewLinea(Params{Layer: LayerL1, Contracts: map[string]string{"message_service": service}})
	if err != nil {
		t.Fatal(err)
	}
	l2, err := NewLinea(Params{Layer: LayerL2, Contracts: map[string]string{"message_service": service}})
	if err != nil {
		t.Fatal(err)
	}

	sent := testTx("0x01")
	sent.Logs = []domain.Log{mkLog(t, service, lineaABI.Events["MessageSent"],
		[]common.Hash{addrTopic(from), addrTopic(to), msgHash},
		big.NewInt(1), big.NewInt(1000), big.NewInt(9), []byte{})}
	claimed := testTx("0x02")
	claimed.Logs = []domain.Log{mkLog(t, service, lineaABI.Events["MessageClaimed"], []common.Hash{msgHash})}

	r1, err := l1.Decode(sent)
	if err != nil {
		t.Fatalf("decode sent: %v", err)
	}
	r2, err := l2.Decode(claimed)
	if err != nil {
		t.Fatalf("decode claimed: %v", err)
	}
	if len(r1.Transactions) != 1 || len(r2.Transactions) != 1 {
		t.Fatalf("expected one record per side, got %d and %d", len(r1.Transactions), len(r2.Transactions))
	}

	a, b := r1.Transactions[0], r2.Transactions[0]
	if a.MsgHash != b.MsgHash || a.MsgHash != strings.ToLower(msgHash.Hex()) {
		t.Errorf("sides do not share a key: %s vs %s", a.MsgHash, b.MsgHash)
	}
	if *a.Direction != domain.BridgeDeposit || *b.Direction != domain.BridgeDeposit {
		t.Errorf("unexpected directions %s / %s", *a.Direction, *b.Direction)
	}
	if a.L1TransactionHash == nil || b.L2TransactionHash == nil || a.L2TransactionHash != nil {
		t.Error("each side must fill only its own transaction columns")
	}
	if *a.Amount != "1000" || *a.Index != "9" {
		t.Errorf("unexpected amount/index %s/%s", *a.Amount, *a.Index)
	}
}

func TestZkEVM(t *testing.T) {
	bridgeAddr := "0x2a3dd3eb832af982ec71669e178424b10dca2ede"
	params := func(network uint32) Params {
		return Params{NetworkID: network, Contracts: map[string]string{"bridge": bridgeAddr}}
	}
	l1, err := NewZkEVM(params(0))
	if err != nil {
		t.Fatal(err)
	}
	l2, err := NewZkEVM(params(1))
	if err != nil {
		t.Fatal(err)
	}

	token := common.Address{}
	dest := common.HexToAddress("0x03")

	deposit := testTx("0x01")
	deposit.Logs = []domain.Log{mkLog(t, bridgeAddr, zkevmABI.Events["BridgeEvent"], nil,
		uint8(0), uint32(0), token, uint32(1), dest, big.NewInt(5e17), []byte{}, uint32(12345))}

	globalIndex := new(big.Int).Lsh(big.NewInt(1), 64)
	globalIndex.Or(globalIndex, big.NewInt(12345))
	claim := testTx("0x02")
	claim.Logs = []domain.Log{mkLog(t, bridgeAddr, zkevmABI.Events["ClaimEvent"], nil,
		globalIndex, uint32(0), token, dest, big.NewInt(5e17))}

	r1, err := l1.Decode(deposit)
	if err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	r2, err := l2.Decode(claim)
	if err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if len(r1.Transactions) != 1 || len(r2.Transactions) != 1 {
		t.Fatalf("unexpected record counts %d/%d", len(r1.Transactions), len(r2.Transactions))
	}

	want := strings.ToLower(ZkEVMMessageHash(0, 12345).Hex())
	if r1.Transactions[0].MsgHash != want || r2.Transactions[0].MsgHash != want {
		t.Errorf("msg hashes %s / %s, want %s", r1.Transactions[0].MsgHash, r2.Transactions[0].MsgHash, want)
	}
	if *r2.Transactions[0].Direction != domain.BridgeDeposit || r2.Transactions[0].L2TransactionHash == nil {
		t.Errorf("unexpected claim record %+v", r2.Transactions[0])
	}
}

func TestSplitGlobalIndex(t *testing.T) {
	tests := []struct {
		name        string
		index       *big.Int
		wantNetwork uint32
		wantCount   uint32
	}{
		{"mainnet", new(big.Int).Or(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(42)), 0, 42},
		{"rollup 0", big.NewInt(42), 1, 42},
		{"rollup 2", new(big.Int).Or(new(big.Int).Lsh(big.NewInt(2), 32), big.NewInt(7)), 3, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, count := SplitGlobalIndex(tt.index)
			if network != tt.wantNetwork || count != tt.wantCount {
				t.Errorf("got (%d, %d), want (%d, %d)", network, count, tt.wantNetwork, tt.wantCount)
			}
		})
	}
}

func TestUnpackLog_Data(t *testing.T) {
	proven := optimismABI.Events["WithdrawalProven"]
	for _, data := range []string{"", "0x"} {
		out, err := unpackLog(proven, domain.Log{Data: data})
		if err != nil || len(out) != 0 {
			t.Errorf("data %q: got %v, %v", data, out, err)
		}
	}

	finalized := optimismABI.Events["WithdrawalFinalized"]
	if _, err := unpackLog(finalized, domain.Log{Data: "0xzz"}); err == nil || !strings.Contains(err.Error(), "invalid hex data") {
		t.Errorf("expected invalid hex error, got %v", err)
	}
	if _, err := unpackLog(finalized, domain.Log{Data: "0x"}); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("expected ErrTruncatedPayload, got %v", err)
	}
}

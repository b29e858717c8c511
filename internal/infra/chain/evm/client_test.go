package evm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/chainetl/internal/infra/chain"
	"github.com/vietddude/chainetl/internal/infra/rpc/provider"
)

type rpcReq struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newNode starts a JSON-RPC server answering batches through handle.
func newNode(t *testing.T, handle func(req rpcReq) (any, *provider.RPCError)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcReq
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Errorf("decode batch: %v", err)
			return
		}
		out := make([]map[string]any, 0, len(reqs))
		for _, req := range reqs {
			result, rpcErr := handle(req)
			resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			out = append(out, resp)
		}
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(server.Close)
	return NewClient(provider.NewHTTPProvider("mock", server.URL, 5*time.Second), nil)
}

func TestClient_Blocks(t *testing.T) {
	client := newNode(t, func(req rpcReq) (any, *provider.RPCError) {
		if req.Method != "eth_getBlockByNumber" {
			t.Errorf("unexpected method %s", req.Method)
		}
		return map[string]any{
			"number":     "0x64",
			"hash":       "0xAA",
			"parentHash": "0x99",
			"timestamp":  "0x5f5e100",
			"miner":      "0xMINER",
			"gasLimit":   "0x1c9c380",
			"gasUsed":    "0x5208",
			"size":       "0x220",
			"transactions": []map[string]any{{
				"hash":             "0xT1",
				"nonce":            "0x1",
				"transactionIndex": "0x0",
				"from":             "0xFROM",
				"to":               nil,
				"value":            "0xde0b6b3a7640000",
				"gas":              "0x5208",
				"gasPrice":         "0x3b9aca00",
				"input":            "0x",
				"type":             "0x2",
			}},
		}, nil
	})

	bundles, err := client.Blocks(context.Background(), []uint64{100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := bundles[0]
	if b.Block.Number != 100 || b.Block.Hash != "0xaa" || b.Block.Timestamp != 100000000 {
		t.Errorf("unexpected block %+v", b.Block)
	}
	if len(b.Transactions) != 1 {
		t.Fatalf("expected 1 tx, got %d", len(b.Transactions))
	}
	tx := b.Transactions[0]
	if tx.To != "" || tx.Value != "1000000000000000000" || tx.BlockTimestamp != 100000000 || tx.Type != 2 {
		t.Errorf("unexpected tx %+v", tx)
	}
}

func TestClient_BlocksNullIsStructural(t *testing.T) {
	client := newNode(t, func(req rpcReq) (any, *provider.RPCError) { return nil, nil })

	_, err := client.Blocks(context.Background(), []uint64{1})
	if !errors.Is(err, provider.ErrMissingResult) {
		t.Fatalf("expected ErrMissingResult, got %v", err)
	}
}

func TestClient_CallsTolerateItemErrors(t *testing.T) {
	client := newNode(t, func(req rpcReq) (any, *provider.RPCError) {
		var call map[string]string
		json.Unmarshal(req.Params[0], &call)
		if call["to"] == "0xbad" {
			return nil, &provider.RPCError{Code: 3, Message: "execution reverted"}
		}
		return "0x0000000000000000000000000000000000000000000000000000000000000012", nil
	})

	results, err := client.Calls(context.Background(), []chain.CallRequest{
		{To: "0xgood", Data: []byte{0x31, 0x3c, 0xe5, 0x67}, Block: 10},
		{To: "0xbad", Data: []byte{0x31, 0x3c, 0xe5, 0x67}, Block: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Err != nil || len(results[0].Data) != 32 || results[0].Data[31] != 0x12 {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("expected error for reverted call")
	}
}

func TestClient_TraceBlocks(t *testing.T) {
	client := newNode(t, func(req rpcReq) (any, *provider.RPCError) {
		return []map[string]any{{
			"txHash": "0xT1",
			"result": map[string]any{
				"type": "CALL", "from": "0xA", "to": "0xB", "value": "0x1", "gas": "0x10", "gasUsed": "0x8",
				"input": "0x", "calls": []map[string]any{{"type": "CREATE", "from": "0xB", "to": "0xC", "gas": "0x4", "gasUsed": "0x2", "input": "0x60", "output": "0x60"}},
			},
		}}, nil
	})

	traces, err := client.TraceBlocks(context.Background(), []uint64{7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := traces[0].Transactions[0].Root
	if root.Type != "call" || len(root.Calls) != 1 || root.Calls[0].Type != "create" || root.Calls[0].To != "0xc" {
		t.Errorf("unexpected frame %+v", root)
	}
	if traces[0].Transactions[0].TxHash != "0xt1" {
		t.Errorf("unexpected tx hash %s", traces[0].Transactions[0].TxHash)
	}
}

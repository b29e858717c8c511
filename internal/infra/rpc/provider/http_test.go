package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type rpcReq struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func TestHTTPProvider_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %q", req.JSONRPC)
		}
		if req.Method != "eth_blockNumber" {
			t.Errorf("unexpected method %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x10"})
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_blockNumber")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `"0x10"` {
		t.Errorf("expected \"0x10\", got %s", result)
	}
}

func TestHTTPProvider_CallMissingResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID})
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_getBlockByNumber", "0x1", false)
	if !errors.Is(err, ErrMissingResult) {
		t.Fatalf("expected ErrMissingResult, got %v", err)
	}
}

func TestHTTPProvider_CallNullResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + jsonUint(req.ID) + `,"result":null}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_getTransactionReceipt", "0xabc")
	if err != nil {
		t.Fatalf("null result must not be an error: %v", err)
	}
	if string(result) != "null" {
		t.Errorf("expected null, got %s", result)
	}
}

func TestHTTPProvider_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_blockNumber")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || httpErr.RetryAfter != "3" {
		t.Errorf("unexpected error fields: %+v", httpErr)
	}
	if p.Health().LastFailureAt.IsZero() {
		t.Error("failure was not recorded")
	}
}

func TestHTTPProvider_BatchCallOrdersByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcReq
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Errorf("failed to decode batch: %v", err)
			return
		}
		// Answer in reverse order, drop the last request, fail the first.
		var out []map[string]any
		for i := len(reqs) - 2; i >= 0; i-- {
			if i == 0 {
				out = append(out, map[string]any{
					"jsonrpc": "2.0", "id": reqs[i].ID,
					"error": map[string]any{"code": -32000, "message": "header not found"},
				})
				continue
			}
			out = append(out, map[string]any{"jsonrpc": "2.0", "id": reqs[i].ID, "result": reqs[i].Method})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	resps, err := p.BatchCall(context.Background(), []BatchRequest{
		{Method: "m0"}, {Method: "m1"}, {Method: "m2"}, {Method: "m3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resps) != 4 {
		t.Fatalf("expected 4 responses, got %d", len(resps))
	}

	var rpcErr *RPCError
	if !errors.As(resps[0].Error, &rpcErr) || rpcErr.Code != -32000 {
		t.Errorf("resp[0]: expected rpc error -32000, got %v", resps[0].Error)
	}
	for i := 1; i <= 2; i++ {
		want := fmt.Sprintf(`"m%d"`, i)
		if resps[i].Error != nil || string(resps[i].Result) != want {
			t.Errorf("resp[%d] = %s, %v; want %s", i, resps[i].Result, resps[i].Error, want)
		}
	}
	if !errors.Is(resps[3].Error, ErrMissingResult) {
		t.Errorf("resp[3]: expected ErrMissingResult, got %v", resps[3].Error)
	}
}

func TestHTTPProvider_BatchRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"batch too large"}}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL, 5*time.Second)
	_, err := p.BatchCall(context.Background(), []BatchRequest{{Method: "eth_blockNumber"}})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32600 {
		t.Fatalf("expected rpc error -32600, got %v", err)
	}
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/vietddude/chainetl/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("429 Too Many Requests"), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("Invalid JSON-RPC request -32600"), ActionFatal},
		{errors.New("Method not found -32601"), ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{&provider.HTTPError{StatusCode: 502}, ActionRetry},
		{&provider.HTTPError{StatusCode: 429}, ActionFailover},
		{fmt.Errorf("eth_call: %w", &provider.RPCError{Code: -32000, Message: "execution reverted"}), ActionFatal},
		{&provider.RPCError{Code: -32005, Message: "limit exceeded"}, ActionFailover},
		{fmt.Errorf("eth_getBlockByNumber: %w", provider.ErrMissingResult), ActionFatal},
		{&url.Error{Op: "Post", URL: "http://node", Err: errors.New("stopped after 10 redirects")}, ActionRetry},
		{context.DeadlineExceeded, ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestIsRetriable(t *testing.T) {
	if IsRetriable(context.Canceled) {
		t.Error("cancellation must not be retried")
	}
	if IsRetriable(provider.ErrMissingResult) {
		t.Error("missing result must not be retried")
	}
	if !IsRetriable(&provider.HTTPError{StatusCode: 503}) {
		t.Error("503 should be retried")
	}
}

type flakyProvider struct {
	failures int
	calls    int
	err      error
}

func (f *flakyProvider) Name() string { return "flaky" }
func (f *flakyProvider) Close() error { return nil }
func (f *flakyProvider) BatchCall(ctx context.Context, r []provider.BatchRequest) ([]provider.BatchResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *flakyProvider) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return json.RawMessage(`"0x1"`), nil
}

func TestCallWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}

	p := &flakyProvider{failures: 2, err: &provider.HTTPError{StatusCode: 500}}
	if _, err := CallWithRetry(context.Background(), p, cfg, "eth_blockNumber"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}

	fatal := &flakyProvider{failures: 5, err: provider.ErrMissingResult}
	if _, err := CallWithRetry(context.Background(), fatal, cfg, "eth_blockNumber"); err == nil {
		t.Fatal("expected error")
	}
	if fatal.calls != 1 {
		t.Errorf("structural errors must not be retried, got %d calls", fatal.calls)
	}
}

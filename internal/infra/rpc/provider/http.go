package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/chainetl/internal/indexing/metrics"
)

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

// Option customises an HTTPProvider.
type Option func(*HTTPProvider)

// WithTransport replaces the HTTP round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *HTTPProvider) {
		p.httpClient.Transport = rt
	}
}

// NewHTTPProvider creates a new HTTP-based RPC provider. timeout bounds every
// single or batched call.
func NewHTTPProvider(name, endpoint string, timeout time.Duration, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonrpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

func (r *jsonrpcResponse) outcome() (json.RawMessage, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if len(r.Result) == 0 {
		return nil, ErrMissingResult
	}
	return r.Result, nil
}

// Call makes a single JSON-RPC call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	req := jsonrpcRequest{JSONRPC: "2.0", ID: p.nextID.Add(1), Method: method, Params: params}

	start := time.Now()
	body, err := p.post(ctx, req, method)
	if err != nil {
		return nil, err
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result, err := resp.outcome()
	if err != nil {
		p.recordFailure()
		metrics.RPCErrorsTotal.WithLabelValues(p.name, method).Inc()
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	p.recordSuccess(time.Since(start))
	metrics.RPCLatency.WithLabelValues(p.name, method).Observe(time.Since(start).Seconds())
	return result, nil
}

// BatchCall makes multiple RPC calls in one request. Responses are matched back
// to requests by id; a request without a matching response is a structural
// error for that item.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	batch := make([]jsonrpcRequest, len(requests))
	index := make(map[uint64]int, len(requests))
	for i, r := range requests {
		params := r.Params
		if params == nil {
			params = []any{}
		}
		id := p.nextID.Add(1)
		batch[i] = jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: r.Method, Params: params}
		index[id] = i
	}

	method := requests[0].Method
	start := time.Now()
	body, err := p.post(ctx, batch, method)
	if err != nil {
		return nil, err
	}

	var batchResp []jsonrpcResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		// Some nodes answer a rejected batch with a single error object.
		var single jsonrpcResponse
		if json.Unmarshal(body, &single) == nil && single.Error != nil {
			p.recordFailure()
			return nil, fmt.Errorf("batch %s: %w", method, single.Error)
		}
		p.recordFailure()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	responses := make([]BatchResponse, len(requests))
	seen := make([]bool, len(requests))
	for _, r := range batchResp {
		var id uint64
		if err := json.Unmarshal(r.ID, &id); err != nil {
			continue
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		seen[i] = true
		result, err := r.outcome()
		responses[i] = BatchResponse{Result: result, Error: err}
	}
	for i := range responses {
		if !seen[i] {
			responses[i] = BatchResponse{Error: ErrMissingResult}
		}
	}

	p.recordSuccess(time.Since(start))
	metrics.RPCLatency.WithLabelValues(p.name, method).Observe(time.Since(start).Seconds())
	return responses, nil
}

func (p *HTTPProvider) post(ctx context.Context, payload any, method string) ([]byte, error) {
	metrics.RPCCallsTotal.WithLabelValues(p.name, method).Inc()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure()
		metrics.RPCErrorsTotal.WithLabelValues(p.name, method).Inc()
		return nil, fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.recordFailure()
		metrics.RPCErrorsTotal.WithLabelValues(p.name, method).Inc()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 256),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}
	return body, nil
}

// Name returns the provider's name.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Health returns the provider's health status.
func (p *HTTPProvider) Health() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
}

func (p *HTTPProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)

	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

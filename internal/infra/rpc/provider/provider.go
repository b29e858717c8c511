// Package provider implements the JSON-RPC transport used to talk to the
// upstream node.
//
// This package contains:
//   - Provider interface: single and batched JSON-RPC 2.0 calls
//   - HTTPProvider: JSON-RPC over HTTP with a pluggable RoundTripper
//   - the error types used by routing.ClassifyError
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingResult is returned when a response carries neither "result"
	// nor "error". It means the node is out of sync and is never retried.
	ErrMissingResult = errors.New("rpc response has neither result nor error")

	// ErrMalformedResponse is returned for bodies that are not valid JSON-RPC.
	ErrMalformedResponse = errors.New("malformed rpc response")
)

// Provider issues JSON-RPC requests against one upstream endpoint.
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// BatchCall makes multiple RPC calls in one request. Responses are
	// returned in request order.
	BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error)

	// Close cleans up resources
	Close() error
}

// BatchRequest represents a single request in a batch call.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse represents a single response from a batch call. Result is the
// raw JSON value and is "null" when the node returned null.
type BatchResponse struct {
	Result json.RawMessage
	Error  error
}

// IsNull reports whether the node answered with a JSON null.
func (r BatchResponse) IsNull() bool {
	return len(r.Result) == 0 || string(r.Result) == "null"
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-200 HTTP response.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter string
}

func (e *HTTPError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("http %d (retry after %s): %s", e.StatusCode, e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/chainetl/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFailover:
		return "failover"
	default:
		return "fatal"
	}
}

var throttlePatterns = []string{
	"rate limit",
	"too many requests",
	"daily request count exceeded",
	"quota",
	"plan limit",
	"count exceeded",
}

// ClassifyError determines the action for a given error.
//
// Transport failures (connection, timeout, redirect, non-200 status) are
// retried. Throttling asks for failover, which a single-provider caller treats
// as a retry. Structural problems such as a missing result, malformed JSON or
// an error object from the node are fatal.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}

	if errors.Is(err, provider.ErrMissingResult) || errors.Is(err, provider.ErrMalformedResponse) {
		return ActionFatal
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return ActionFatal
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 || httpErr.StatusCode == 403 {
			return ActionFailover
		}
		return ActionRetry
	}

	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == 429 || rpcErr.Code == -32005 || isThrottle(rpcErr.Message) {
			return ActionFailover
		}
		return ActionFatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ActionRetry
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ActionRetry
	}

	s := err.Error()
	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}
	if strings.Contains(s, "429") || strings.Contains(s, "403") || isThrottle(s) {
		return ActionFailover
	}

	// Default to Retry (Network, 5xx, etc)
	return ActionRetry
}

// IsRetriable reports whether err should go through the shrink-and-retry path.
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return ClassifyError(err) != ActionFatal
}

func isThrottle(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// CallWithRetry executes an RPC call with exponential backoff.
func CallWithRetry(
	ctx context.Context,
	p provider.Provider,
	config RetryConfig,
	method string,
	params ...any,
) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := p.Call(ctx, method, params...)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !IsRetriable(err) {
			return nil, err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

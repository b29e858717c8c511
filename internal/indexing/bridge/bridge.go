// Package bridge turns L1/L2 bridge contract events into cross-chain message
// records. Every family derives its own message hash so that the deposit side
// and the claim side of one message land on the same row.
package bridge

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// ErrTruncatedPayload means an event or calldata payload is shorter than its
// protocol minimum. It is never treated as a missing counterpart.
var ErrTruncatedPayload = errors.New("bridge: truncated payload")

// Layer is the side of the bridge a decoder runs on.
type Layer string

const (
	LayerL1 Layer = "l1"
	LayerL2 Layer = "l2"
)

// Tx is one transaction with the context decoders may need.
type Tx struct {
	Block       domain.Block
	Transaction domain.Transaction
	Logs        []domain.Log
}

// Result accumulates decoder output.
type Result struct {
	Transactions []domain.BridgeTransaction
	StateBatches []domain.StateBatch
	DABatches    []domain.DABatch
}

// Merge appends other to r.
func (r *Result) Merge(other Result) {
	r.Transactions = append(r.Transactions, other.Transactions...)
	r.StateBatches = append(r.StateBatches, other.StateBatches...)
	r.DABatches = append(r.DABatches, other.DABatches...)
}

// Empty reports whether r holds nothing.
func (r *Result) Empty() bool {
	return len(r.Transactions) == 0 && len(r.StateBatches) == 0 && len(r.DABatches) == 0
}

// Decoder is a pure function from a transaction to bridge records.
type Decoder interface {
	Name() string
	Decode(tx *Tx) (Result, error)
}

// Params configures one decoder instance.
type Params struct {
	Layer Layer
	// ChainID is the L2 chain id, needed by hash derivations that commit to it.
	ChainID uint64
	// NetworkID is the zkEVM bridge network id of the chain being indexed.
	NetworkID uint32
	// Contracts maps a contract role to its address.
	Contracts map[string]string
}

func (p Params) contract(role string) (string, error) {
	addr, ok := p.Contracts[role]
	if !ok || addr == "" {
		return "", fmt.Errorf("missing contract address %q", role)
	}
	return strings.ToLower(addr), nil
}

func (p Params) optionalContract(role string) string {
	return strings.ToLower(p.Contracts[role])
}

// Factory builds a decoder from its parameters.
type Factory func(p Params) (Decoder, error)

// Registry maps a decoder name to its factory.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in decoder.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("arbitrum", NewArbitrum)
	r.Register("optimism", NewOptimism)
	r.Register("zkevm", NewZkEVM)
	r.Register("linea", NewLinea)
	r.Register("mantle_da", NewMantleDA)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Build instantiates the named decoder.
func (r *Registry) Build(name string, p Params) (Decoder, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown bridge decoder %q", name)
	}
	d, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", name, err)
	}
	return d, nil
}

func logsFrom(logs []domain.Log, address string) []domain.Log {
	var out []domain.Log
	for _, l := range logs {
		if l.Address == address {
			out = append(out, l)
		}
	}
	return out
}

func directionPtr(d domain.BridgeDirection) *domain.BridgeDirection { return &d }

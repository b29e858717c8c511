package storage

import (
	"fmt"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Resolve applies the per-kind conflict policy of Sink to two records
// sharing a natural key.
func Resolve(existing, incoming any) any {
	switch in := incoming.(type) {
	case domain.Token, domain.TokenBalance, domain.CoinBalance:
		return existing
	case domain.CurrentTokenBalance:
		if in.BlockNumber >= existing.(domain.CurrentTokenBalance).BlockNumber {
			return in
		}
		return existing
	case domain.BridgeTransaction:
		merged := existing.(domain.BridgeTransaction)
		merged.Merge(in)
		return merged
	default:
		return incoming
	}
}

// NaturalKey returns the identity of rec within its kind.
func NaturalKey(kind domain.DataKind, rec any) (string, error) {
	switch r := rec.(type) {
	case domain.Block:
		return fmt.Sprint(r.Number), nil
	case domain.Transaction:
		return r.Hash, nil
	case domain.Receipt:
		return r.TransactionHash, nil
	case domain.Log:
		return fmt.Sprintf("%s/%d", r.TransactionHash, r.LogIndex), nil
	case domain.TokenTransfer:
		return fmt.Sprintf("%s/%d/%d", r.TransactionHash, r.LogIndex, r.BatchIndex), nil
	case domain.Token:
		return r.Address, nil
	case domain.TokenBalance:
		return fmt.Sprintf("%s/%s/%s/%d", r.Address, r.TokenAddress, r.TokenID, r.BlockNumber), nil
	case domain.CurrentTokenBalance:
		return fmt.Sprintf("%s/%s/%s", r.Address, r.TokenAddress, r.TokenID), nil
	case domain.Trace:
		return r.TraceID, nil
	case domain.Contract:
		return r.Address, nil
	case domain.CoinBalance:
		return fmt.Sprintf("%s/%d", r.Address, r.BlockNumber), nil
	case domain.BridgeTransaction:
		return r.MsgHash, nil
	case domain.StateBatch:
		return fmt.Sprintf("%s/%d", r.Family, r.BatchIndex), nil
	case domain.DABatch:
		return fmt.Sprintf("%s/%d", r.Family, r.DataStoreID), nil
	default:
		return "", fmt.Errorf("storage: unsupported %s record %T", kind, rec)
	}
}

// Dedupe collapses records sharing a natural key with Resolve, keeping the
// position of the first occurrence.
func Dedupe(kind domain.DataKind, records []any) ([]any, error) {
	idx := make(map[string]int, len(records))
	out := make([]any, 0, len(records))
	for _, rec := range records {
		key, err := NaturalKey(kind, rec)
		if err != nil {
			return nil, err
		}
		if i, ok := idx[key]; ok {
			out[i] = Resolve(out[i], rec)
			continue
		}
		idx[key] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

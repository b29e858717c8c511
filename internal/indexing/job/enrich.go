package job

import (
	"errors"
	"fmt"
)

// ErrCardinalityMismatch means an inner join dropped or duplicated rows of
// its left side, usually because a counterpart never arrived from the node.
var ErrCardinalityMismatch = errors.New("enrich: result cardinality differs from input")

// Enrich inner-joins left against right on key and projects each matching
// pair through project. Every left row must match exactly one right row.
func Enrich[L, R any, K comparable, O any](
	left []L,
	right []R,
	leftKey func(L) K,
	rightKey func(R) K,
	project func(L, R) O,
) ([]O, error) {
	index := make(map[K][]R, len(right))
	for _, r := range right {
		k := rightKey(r)
		index[k] = append(index[k], r)
	}

	out := make([]O, 0, len(left))
	for i, l := range left {
		k := leftKey(l)
		matches := index[k]
		if len(matches) != 1 {
			return nil, fmt.Errorf("%w: row %d key %v matched %d rows", ErrCardinalityMismatch, i, k, len(matches))
		}
		out = append(out, project(l, matches[0]))
	}
	return out, nil
}

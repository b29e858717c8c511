package job

import (
	"fmt"
	"sync"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Buffer is the per-run arena shared by the jobs of one dispatch. It maps a
// data kind to the ordered records produced for it.
type Buffer struct {
	rng domain.BlockRange

	mu   sync.Mutex
	data map[domain.DataKind][]any
}

// NewBuffer creates an empty arena for the given block range.
func NewBuffer(rng domain.BlockRange) *Buffer {
	return &Buffer{
		rng:  rng,
		data: make(map[domain.DataKind][]any),
	}
}

// Range returns the block range this arena was created for.
func (b *Buffer) Range() domain.BlockRange {
	return b.rng
}

// Append adds records under kind, preserving order.
func (b *Buffer) Append(kind domain.DataKind, records ...any) {
	b.mu.Lock()
	b.data[kind] = append(b.data[kind], records...)
	b.mu.Unlock()
}

// Set replaces the records stored under kind.
func (b *Buffer) Set(kind domain.DataKind, records []any) {
	b.mu.Lock()
	b.data[kind] = records
	b.mu.Unlock()
}

// Records returns a copy of the records stored under kind.
func (b *Buffer) Records(kind domain.DataKind) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any(nil), b.data[kind]...)
}

// Has reports whether kind has been written during this run, even if empty.
func (b *Buffer) Has(kind domain.DataKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[kind]
	return ok
}

// Clear drops everything stored under the given kinds.
func (b *Buffer) Clear(kinds ...domain.DataKind) {
	b.mu.Lock()
	for _, k := range kinds {
		delete(b.data, k)
	}
	b.mu.Unlock()
}

// Get returns the records under kind as T. A record of any other type is a
// programming error and is reported as such.
func Get[T any](b *Buffer, kind domain.DataKind) ([]T, error) {
	raw := b.Records(kind)
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		v, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("buffer %s[%d]: unexpected record type %T", kind, i, r)
		}
		out = append(out, v)
	}
	return out, nil
}

// Put replaces the records under kind with items.
func Put[T any](b *Buffer, kind domain.DataKind, items []T) {
	raw := make([]any, len(items))
	for i, v := range items {
		raw[i] = v
	}
	b.Set(kind, raw)
}

// Package memory implements the storage interfaces in process memory. It
// applies the same conflict policy as the postgres sink and is used by tests
// and dry runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

type MemoryStorage struct {
	records map[domain.DataKind]map[string]any
	cursors map[string]*domain.SyncRecord
	fixes   map[string]*domain.FixRecord
	now     func() time.Time
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[domain.DataKind]map[string]any),
		cursors: make(map[string]*domain.SyncRecord),
		fixes:   make(map[string]*domain.FixRecord),
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

type Sink struct {
	store *MemoryStorage
}

func NewSink(store *MemoryStorage) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Write(_ context.Context, _ domain.BlockRange, records map[domain.DataKind][]any) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.upsertAll(records)
}

func (s *Sink) Replace(_ context.Context, rng domain.BlockRange, records map[domain.DataKind][]any) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	for _, kind := range append([]domain.DataKind{domain.KindBlock}, domain.BlockScopedKinds...) {
		for key, rec := range s.store.records[kind] {
			if n, ok := blockOf(rec); ok && rng.Contains(n) {
				delete(s.store.records[kind], key)
			}
		}
	}
	return s.store.upsertAll(records)
}

func (m *MemoryStorage) upsertAll(records map[domain.DataKind][]any) error {
	// validate first so a bad record leaves the store untouched
	for kind, recs := range records {
		for _, rec := range recs {
			if _, err := storage.NaturalKey(kind, rec); err != nil {
				return err
			}
		}
	}
	for kind, recs := range records {
		table := m.records[kind]
		if table == nil {
			table = make(map[string]any)
			m.records[kind] = table
		}
		for _, rec := range recs {
			key, _ := storage.NaturalKey(kind, rec)
			existing, ok := table[key]
			if !ok {
				table[key] = rec
				continue
			}
			table[key] = storage.Resolve(existing, rec)
		}
	}
	return nil
}

func blockOf(rec any) (uint64, bool) {
	switch r := rec.(type) {
	case domain.Block:
		return r.Number, true
	case domain.Transaction:
		return r.BlockNumber, true
	case domain.Receipt:
		return r.BlockNumber, true
	case domain.Log:
		return r.BlockNumber, true
	case domain.TokenTransfer:
		return r.BlockNumber, true
	case domain.Trace:
		return r.BlockNumber, true
	case domain.Contract:
		return r.BlockNumber, true
	case domain.TokenBalance:
		return r.BlockNumber, true
	case domain.CoinBalance:
		return r.BlockNumber, true
	default:
		return 0, false
	}
}

// Records returns every stored record of kind in key order.
func (m *MemoryStorage) Records(kind domain.DataKind) []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.records[kind]))
	for k := range m.records[kind] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = m.records[kind][k]
	}
	return out
}

// -----------------------------------------------------------------------------
// Block Repository
// -----------------------------------------------------------------------------

type BlockRepo struct {
	store *MemoryStorage
}

func NewBlockRepo(store *MemoryStorage) *BlockRepo {
	return &BlockRepo{store: store}
}

func (r *BlockRepo) blocks() []domain.Block {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Block, 0, len(r.store.records[domain.KindBlock]))
	for _, rec := range r.store.records[domain.KindBlock] {
		out = append(out, rec.(domain.Block))
	}
	slices.SortFunc(out, func(a, b domain.Block) int { return cmp.Compare(a.Number, b.Number) })
	return out
}

func (r *BlockRepo) BlockHashes(_ context.Context, rng domain.BlockRange) (map[uint64]string, error) {
	out := make(map[uint64]string)
	for _, b := range r.blocks() {
		if rng.Contains(b.Number) {
			out[b.Number] = b.Hash
		}
	}
	return out, nil
}

func (r *BlockRepo) GetByNumber(_ context.Context, number uint64) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[domain.KindBlock][fmt.Sprint(number)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	b := rec.(domain.Block)
	return &b, nil
}

func (r *BlockRepo) GetLatest(context.Context) (*domain.Block, error) {
	blocks := r.blocks()
	if len(blocks) == 0 {
		return nil, storage.ErrNotFound
	}
	b := blocks[len(blocks)-1]
	return &b, nil
}

func (r *BlockRepo) RangeByTime(_ context.Context, from, to time.Time) (domain.BlockRange, error) {
	var (
		rng   domain.BlockRange
		found bool
	)
	lo, hi := uint64(from.Unix()), uint64(to.Unix())
	for _, b := range r.blocks() {
		if b.Timestamp < lo || b.Timestamp >= hi {
			continue
		}
		if !found {
			rng = domain.BlockRange{Start: b.Number, End: b.Number}
			found = true
			continue
		}
		rng.End = b.Number
	}
	if !found {
		return domain.BlockRange{}, storage.ErrNotFound
	}
	return rng, nil
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(_ context.Context, mission string) (*domain.SyncRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.cursors[mission]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *CursorRepo) Advance(_ context.Context, mission string, block uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if rec, ok := r.store.cursors[mission]; ok && rec.LastBlockNumber >= block {
		return nil
	}
	r.store.cursors[mission] = &domain.SyncRecord{Mission: mission, LastBlockNumber: block, UpdatedAt: r.store.now()}
	return nil
}

func (r *CursorRepo) Reset(_ context.Context, mission string, block uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursors[mission] = &domain.SyncRecord{Mission: mission, LastBlockNumber: block, UpdatedAt: r.store.now()}
	return nil
}

// -----------------------------------------------------------------------------
// Fix Record Repository
// -----------------------------------------------------------------------------

type FixRecordRepo struct {
	store *MemoryStorage
}

func NewFixRecordRepo(store *MemoryStorage) *FixRecordRepo {
	return &FixRecordRepo{store: store}
}

func (r *FixRecordRepo) runningLocked() bool {
	for _, rec := range r.store.fixes {
		if rec.JobStatus == domain.FixStatusRunning {
			return true
		}
	}
	return false
}

func (r *FixRecordRepo) Claim(_ context.Context, rec *domain.FixRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.runningLocked() {
		return storage.ErrFixInProgress
	}
	if _, ok := r.store.fixes[rec.JobID]; ok {
		return fmt.Errorf("fix record %s already exists", rec.JobID)
	}
	now := r.store.now()
	rec.JobStatus = domain.FixStatusRunning
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	r.store.fixes[rec.JobID] = &cp
	return nil
}

func (r *FixRecordRepo) ClaimExisting(_ context.Context, jobID string) (*domain.FixRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.runningLocked() {
		return nil, storage.ErrFixInProgress
	}
	rec, ok := r.store.fixes[jobID]
	if !ok || rec.JobStatus == domain.FixStatusCompleted {
		return nil, storage.ErrNotFound
	}
	rec.JobStatus = domain.FixStatusRunning
	rec.UpdatedAt = r.store.now()
	cp := *rec
	return &cp, nil
}

func (r *FixRecordRepo) Submit(_ context.Context, rec *domain.FixRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.fixes[rec.JobID]; ok {
		return fmt.Errorf("fix record %s already exists", rec.JobID)
	}
	now := r.store.now()
	rec.JobStatus = domain.FixStatusSubmitted
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	r.store.fixes[rec.JobID] = &cp
	return nil
}

func (r *FixRecordRepo) SaveProgress(_ context.Context, jobID string, lastFixed *uint64, remain uint64, status domain.FixStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.fixes[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	if lastFixed != nil {
		rec.LastFixedBlockNumber = domain.Ptr(*lastFixed)
	}
	rec.RemainProcess = remain
	rec.JobStatus = status
	rec.UpdatedAt = r.store.now()
	return nil
}

func (r *FixRecordRepo) OldestPending(context.Context) (*domain.FixRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var oldest *domain.FixRecord
	for _, rec := range r.store.fixes {
		if rec.JobStatus == domain.FixStatusRunning || rec.JobStatus == domain.FixStatusCompleted {
			continue
		}
		if oldest == nil || rec.CreatedAt.Before(oldest.CreatedAt) ||
			(rec.CreatedAt.Equal(oldest.CreatedAt) && rec.JobID < oldest.JobID) {
			oldest = rec
		}
	}
	if oldest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (r *FixRecordRepo) Get(_ context.Context, jobID string) (*domain.FixRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.fixes[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// All returns every fix record ordered by creation.
func (r *FixRecordRepo) All() []domain.FixRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.FixRecord, 0, len(r.store.fixes))
	for _, rec := range r.store.fixes {
		out = append(out, *rec)
	}
	slices.SortFunc(out, func(a, b domain.FixRecord) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.JobID, b.JobID))
	})
	return out
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrFixInProgress is returned when another fixing job already holds the
	// single running slot
	ErrFixInProgress = errors.New("another fix job is running")
)

// Sink writes extracted records. Conflicts on a record's natural key are
// resolved per kind:
//   - blocks, transactions, receipts, logs, traces, contracts: overwrite
//   - tokens, token balances, coin balances: keep the existing row
//   - current token balances: overwrite when the incoming block is not older
//   - bridge transactions: fill null columns, status from the incoming row
type Sink interface {
	// Write upserts every record in one transaction.
	Write(ctx context.Context, rng domain.BlockRange, records map[domain.DataKind][]any) error

	// Replace deletes the block-scoped rows of rng and writes records in
	// their place, in one transaction.
	Replace(ctx context.Context, rng domain.BlockRange, records map[domain.DataKind][]any) error
}

// BlockRepository reads back stored blocks.
type BlockRepository interface {
	// BlockHashes returns the stored hash of every stored block in rng
	BlockHashes(ctx context.Context, rng domain.BlockRange) (map[uint64]string, error)

	// GetByNumber retrieves a block by number
	GetByNumber(ctx context.Context, number uint64) (*domain.Block, error)

	// GetLatest retrieves the highest stored block
	GetLatest(ctx context.Context) (*domain.Block, error)

	// RangeByTime resolves [from, to) to the stored blocks whose timestamps
	// fall inside it
	RangeByTime(ctx context.Context, from, to time.Time) (domain.BlockRange, error)
}

// CursorRepository handles sync checkpoints
type CursorRepository interface {
	// Get retrieves the checkpoint of a mission
	Get(ctx context.Context, mission string) (*domain.SyncRecord, error)

	// Advance moves the checkpoint forward. A lower block is ignored.
	Advance(ctx context.Context, mission string, block uint64) error

	// Reset sets the checkpoint unconditionally
	Reset(ctx context.Context, mission string, block uint64) error
}

// FixRecordRepository persists fixing jobs. Claim and ClaimExisting check and
// take the single running slot in one transaction.
type FixRecordRepository interface {
	// Claim inserts rec as running, or fails with ErrFixInProgress
	Claim(ctx context.Context, rec *domain.FixRecord) error

	// ClaimExisting moves a stored, non-completed record to running, or
	// fails with ErrFixInProgress. A missing or completed record is
	// ErrNotFound.
	ClaimExisting(ctx context.Context, jobID string) (*domain.FixRecord, error)

	// Submit inserts rec as submitted for a later run
	Submit(ctx context.Context, rec *domain.FixRecord) error

	// SaveProgress records the last fixed block, the remaining count and the status
	SaveProgress(ctx context.Context, jobID string, lastFixed *uint64, remain uint64, status domain.FixStatus) error

	// OldestPending returns the oldest record that is neither running nor completed
	OldestPending(ctx context.Context) (*domain.FixRecord, error)

	// Get retrieves a record by job id
	Get(ctx context.Context, jobID string) (*domain.FixRecord, error)
}

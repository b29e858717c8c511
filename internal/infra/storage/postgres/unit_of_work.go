package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/metrics"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// UnitOfWork bundles all persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// DeleteBlocks removes every block-scoped row inside rng, children before
// their blocks.
func (u *UnitOfWork) DeleteBlocks(ctx context.Context, rng domain.BlockRange) error {
	for _, kind := range slices.Backward(writeOrder) {
		t := tables[kind]
		if !t.scoped {
			continue
		}
		column := "block_number"
		if kind == domain.KindBlock {
			column = "number"
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s BETWEEN $1 AND $2", t.name, column)
		if _, err := u.tx.ExecContext(ctx, query, rng.Start, rng.End); err != nil {
			return fmt.Errorf("failed to delete %s in %s: %w", t.name, rng, err)
		}
	}
	return nil
}

// Upsert writes records of one kind with multi-row INSERT statements,
// applying the kind's conflict policy.
func (u *UnitOfWork) Upsert(ctx context.Context, kind domain.DataKind, records []any) error {
	if len(records) == 0 {
		return nil
	}
	t, ok := tables[kind]
	if !ok {
		return fmt.Errorf("no table for %s", kind)
	}

	// one statement cannot touch the same key twice
	records, err := storage.Dedupe(kind, records)
	if err != nil {
		return err
	}
	rows := make([]any, len(records))
	for i, rec := range records {
		if rows[i], err = t.row(rec); err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
	}

	// Record batch size metric
	metrics.DBBatchSize.WithLabelValues(t.name).Observe(float64(len(rows)))

	query := t.insertSQL()
	for chunk := range slices.Chunk(rows, t.chunkSize()) {
		if _, err := u.tx.NamedExecContext(ctx, query, chunk); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", t.name, err)
		}
	}
	return nil
}

// writeOrder is the order kinds are upserted in, for stable lock ordering
// across concurrent writers.
var writeOrder = []domain.DataKind{
	domain.KindBlock,
	domain.KindTransaction,
	domain.KindReceipt,
	domain.KindLog,
	domain.KindTokenTransfer,
	domain.KindToken,
	domain.KindTokenBalance,
	domain.KindCurrentTokenBalance,
	domain.KindTrace,
	domain.KindContract,
	domain.KindCoinBalance,
	domain.KindBridgeTransaction,
	domain.KindStateBatch,
	domain.KindDABatch,
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves the checkpoint of a mission.
func (r *CursorRepo) Get(ctx context.Context, mission string) (*domain.SyncRecord, error) {
	var rec domain.SyncRecord
	query := `SELECT mission, last_block_number, updated_at FROM sync_records WHERE mission = $1`
	err := r.db.GetContext(ctx, &rec, query, mission)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &rec, nil
}

// Advance moves the checkpoint forward. A lower block is ignored.
func (r *CursorRepo) Advance(ctx context.Context, mission string, block uint64) error {
	query := `
		INSERT INTO sync_records (mission, last_block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (mission) DO UPDATE SET
			last_block_number = GREATEST(sync_records.last_block_number, EXCLUDED.last_block_number),
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, mission, block); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// Reset sets the checkpoint unconditionally.
func (r *CursorRepo) Reset(ctx context.Context, mission string, block uint64) error {
	query := `
		INSERT INTO sync_records (mission, last_block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (mission) DO UPDATE SET
			last_block_number = EXCLUDED.last_block_number,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, mission, block); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

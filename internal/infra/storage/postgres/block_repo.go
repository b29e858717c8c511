package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

// BlockRepo implements storage.BlockRepository using PostgreSQL.
type BlockRepo struct {
	db *DB
}

// NewBlockRepo creates a new PostgreSQL block repository.
func NewBlockRepo(db *DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// BlockHashes returns the stored hash of every stored block in rng.
func (r *BlockRepo) BlockHashes(ctx context.Context, rng domain.BlockRange) (map[uint64]string, error) {
	var rows []struct {
		Number uint64 `db:"number"`
		Hash   string `db:"hash"`
	}
	query := `SELECT number, hash FROM blocks WHERE number BETWEEN $1 AND $2`
	if err := r.db.SelectContext(ctx, &rows, query, rng.Start, rng.End); err != nil {
		return nil, fmt.Errorf("failed to get block hashes: %w", err)
	}

	out := make(map[uint64]string, len(rows))
	for _, row := range rows {
		out[row.Number] = row.Hash
	}
	return out, nil
}

// GetByNumber retrieves a block by number.
func (r *BlockRepo) GetByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	query := `SELECT ` + columnList(blockColumns) + ` FROM blocks WHERE number = $1`
	return r.getOne(ctx, query, number)
}

// GetLatest retrieves the highest stored block.
func (r *BlockRepo) GetLatest(ctx context.Context) (*domain.Block, error) {
	query := `SELECT ` + columnList(blockColumns) + ` FROM blocks ORDER BY number DESC LIMIT 1`
	return r.getOne(ctx, query)
}

func (r *BlockRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Block, error) {
	var b domain.Block
	err := r.db.GetContext(ctx, &b, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return &b, nil
}

// RangeByTime resolves [from, to) to the stored blocks whose timestamps fall
// inside it.
func (r *BlockRepo) RangeByTime(ctx context.Context, from, to time.Time) (domain.BlockRange, error) {
	var row struct {
		Start sql.NullInt64 `db:"start_block"`
		End   sql.NullInt64 `db:"end_block"`
	}
	query := `
		SELECT MIN(number) AS start_block, MAX(number) AS end_block
		FROM blocks
		WHERE timestamp >= $1 AND timestamp < $2
	`
	if err := r.db.GetContext(ctx, &row, query, from.Unix(), to.Unix()); err != nil {
		return domain.BlockRange{}, fmt.Errorf("failed to resolve time range: %w", err)
	}
	if !row.Start.Valid {
		return domain.BlockRange{}, storage.ErrNotFound
	}
	return domain.BlockRange{Start: uint64(row.Start.Int64), End: uint64(row.End.Int64)}, nil
}

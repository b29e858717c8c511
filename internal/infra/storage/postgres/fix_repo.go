package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

const fixColumns = `job_id, start_block_number, last_fixed_block_number, remain_process, job_status, created_at, updated_at`

// FixRecordRepo implements storage.FixRecordRepository using PostgreSQL.
//
// The running slot is checked and taken in one transaction. The check locks
// any running row; the partial unique index on job_status rejects a second
// running row when two transactions race past an empty check.
type FixRecordRepo struct {
	db *DB
}

// NewFixRecordRepo creates a new PostgreSQL fix record repository.
func NewFixRecordRepo(db *DB) *FixRecordRepo {
	return &FixRecordRepo{db: db}
}

func runningExists(ctx context.Context, tx *sqlx.Tx) (bool, error) {
	var jobID string
	err := tx.GetContext(ctx, &jobID, `SELECT job_id FROM fix_records WHERE job_status = 'running' LIMIT 1 FOR UPDATE`)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check running fix: %w", err)
	}
	return true, nil
}

// Claim inserts rec as running, or fails with storage.ErrFixInProgress.
func (r *FixRecordRepo) Claim(ctx context.Context, rec *domain.FixRecord) error {
	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		running, err := runningExists(ctx, tx)
		if err != nil {
			return err
		}
		if running {
			return storage.ErrFixInProgress
		}
		query := `
			INSERT INTO fix_records (job_id, start_block_number, last_fixed_block_number, remain_process, job_status)
			VALUES ($1, $2, $3, $4, 'running')
			RETURNING ` + fixColumns
		return tx.GetContext(ctx, rec, query, rec.JobID, rec.StartBlockNumber, rec.LastFixedBlockNumber, rec.RemainProcess)
	})
	return r.classify(err)
}

// ClaimExisting moves a stored, non-completed record to running, or fails
// with storage.ErrFixInProgress.
func (r *FixRecordRepo) ClaimExisting(ctx context.Context, jobID string) (*domain.FixRecord, error) {
	var rec domain.FixRecord
	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		running, err := runningExists(ctx, tx)
		if err != nil {
			return err
		}
		if running {
			return storage.ErrFixInProgress
		}
		query := `
			UPDATE fix_records SET job_status = 'running', updated_at = NOW()
			WHERE job_id = $1 AND job_status <> 'completed'
			RETURNING ` + fixColumns
		err = tx.GetContext(ctx, &rec, query, jobID)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	})
	if err := r.classify(err); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *FixRecordRepo) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrFixInProgress), errors.Is(err, storage.ErrNotFound):
		return err
	case isUniqueViolation(err):
		return storage.ErrFixInProgress
	default:
		return fmt.Errorf("failed to claim fix: %w", err)
	}
}

// Submit inserts rec as submitted for a later run.
func (r *FixRecordRepo) Submit(ctx context.Context, rec *domain.FixRecord) error {
	query := `
		INSERT INTO fix_records (job_id, start_block_number, last_fixed_block_number, remain_process, job_status)
		VALUES ($1, $2, $3, $4, 'submitted')
		RETURNING ` + fixColumns
	if err := r.db.GetContext(ctx, rec, query, rec.JobID, rec.StartBlockNumber, rec.LastFixedBlockNumber, rec.RemainProcess); err != nil {
		return fmt.Errorf("failed to submit fix: %w", err)
	}
	return nil
}

// SaveProgress records the last fixed block, the remaining count and the status.
func (r *FixRecordRepo) SaveProgress(ctx context.Context, jobID string, lastFixed *uint64, remain uint64, status domain.FixStatus) error {
	query := `
		UPDATE fix_records
		SET last_fixed_block_number = COALESCE($2::BIGINT, last_fixed_block_number), remain_process = $3, job_status = $4, updated_at = NOW()
		WHERE job_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, jobID, lastFixed, remain, string(status))
	if err != nil {
		return fmt.Errorf("failed to save fix progress: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// OldestPending returns the oldest record that is neither running nor completed.
func (r *FixRecordRepo) OldestPending(ctx context.Context) (*domain.FixRecord, error) {
	query := `
		SELECT ` + fixColumns + ` FROM fix_records
		WHERE job_status IN ('submitted', 'interrupt')
		ORDER BY created_at ASC, job_id ASC LIMIT 1
	`
	return r.getOne(ctx, query)
}

// Get retrieves a record by job id.
func (r *FixRecordRepo) Get(ctx context.Context, jobID string) (*domain.FixRecord, error) {
	return r.getOne(ctx, `SELECT `+fixColumns+` FROM fix_records WHERE job_id = $1`, jobID)
}

func (r *FixRecordRepo) getOne(ctx context.Context, query string, args ...any) (*domain.FixRecord, error) {
	var rec domain.FixRecord
	err := r.db.GetContext(ctx, &rec, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fix record: %w", err)
	}
	return &rec, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Sink implements storage.Sink using PostgreSQL.
type Sink struct {
	db *DB
}

// NewSink creates a new PostgreSQL sink.
func NewSink(db *DB) *Sink {
	return &Sink{db: db}
}

// Write upserts every record in one transaction.
func (s *Sink) Write(ctx context.Context, rng domain.BlockRange, records map[domain.DataKind][]any) error {
	return s.run(ctx, rng, records, false)
}

// Replace deletes the block-scoped rows of rng and writes records in their
// place, in one transaction.
func (s *Sink) Replace(ctx context.Context, rng domain.BlockRange, records map[domain.DataKind][]any) error {
	return s.run(ctx, rng, records, true)
}

func (s *Sink) run(ctx context.Context, rng domain.BlockRange, records map[domain.DataKind][]any, replace bool) error {
	for kind := range records {
		if _, ok := tables[kind]; !ok {
			return fmt.Errorf("no table for %s", kind)
		}
	}

	uow, err := s.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if replace {
		if err := uow.DeleteBlocks(ctx, rng); err != nil {
			return err
		}
	}
	for _, kind := range writeOrder {
		if err := uow.Upsert(ctx, kind, records[kind]); err != nil {
			return fmt.Errorf("write %s: %w", rng, err)
		}
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", rng, err)
	}
	return nil
}

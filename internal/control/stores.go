package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/chainetl/internal/core/cursor"
	"github.com/vietddude/chainetl/internal/infra/storage"
	"github.com/vietddude/chainetl/internal/infra/storage/memory"
	"github.com/vietddude/chainetl/internal/infra/storage/postgres"
)

// Stores groups the repositories behind one sink.
type Stores struct {
	db      *postgres.DB
	sink    storage.Sink
	blocks  storage.BlockRepository
	cursors storage.CursorRepository
	fixes   storage.FixRecordRepository
}

// OpenStores connects PostgreSQL and applies migrations, or falls back to
// process memory when no URL is configured.
func OpenStores(ctx context.Context, cfg postgres.Config) (*Stores, error) {
	if cfg.URL == "" {
		slog.Warn("Using Memory storage, nothing survives a restart")
		store := memory.NewMemoryStorage()
		return &Stores{
			sink:    memory.NewSink(store),
			blocks:  memory.NewBlockRepo(store),
			cursors: memory.NewCursorRepo(store),
			fixes:   memory.NewFixRecordRepo(store),
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("Using PostgreSQL storage")
	return &Stores{
		db:      db,
		sink:    postgres.NewSink(db),
		blocks:  postgres.NewBlockRepo(db),
		cursors: postgres.NewCursorRepo(db),
		fixes:   postgres.NewFixRecordRepo(db),
	}, nil
}

// Cursors returns a checkpoint manager over the cursor table.
func (s *Stores) Cursors() cursor.Manager {
	return cursor.NewManager(s.cursors)
}

// Blocks returns the stored block repository.
func (s *Stores) Blocks() storage.BlockRepository {
	return s.blocks
}

// Fixes returns the FixRecord repository.
func (s *Stores) Fixes() storage.FixRecordRepository {
	return s.fixes
}

// StartMetrics starts the connection pool collector bound to ctx.
func (s *Stores) StartMetrics(ctx context.Context) {
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
}

// Close closes the database, if any.
func (s *Stores) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

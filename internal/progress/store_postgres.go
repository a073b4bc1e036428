package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps an append-only archive of finished tasks so operators
// can inspect history after the in-memory tracker reaps it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initProgressSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initProgressSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS progress_tasks (
			id TEXT PRIMARY KEY,
			operation_type TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL,
			total_steps INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_progress_tasks_channel_updated ON progress_tasks (channel_id, updated_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init progress schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTask(ctx context.Context, task Task) error {
	meta, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO progress_tasks
			(id, operation_type, channel_id, status, progress, total_steps, message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			total_steps = EXCLUDED.total_steps,
			message = EXCLUDED.message,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		task.ID, task.OperationType, task.ChannelID, string(task.Status),
		task.Progress, task.TotalSteps, task.Message, meta,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

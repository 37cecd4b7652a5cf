package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/gofr-dig/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS run_records (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	request_count INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	report_json JSONB,
	error TEXT
);
`

// New creates a new Postgres-backed storage.Backend, the shared sink
// multiple `simulate` processes across replicas can report into.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage/postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, record *storage.RunRecord) error {
	query := `
	INSERT INTO run_records (
		id, mode, started_at, finished_at, duration_ms, request_count, error_count, report_json, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := b.pool.Exec(ctx, query,
		record.ID,
		record.Mode,
		record.StartedAt,
		record.FinishedAt,
		record.Duration.Milliseconds(),
		record.RequestCount,
		record.ErrorCount,
		record.ReportJSON,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("storage/postgres: save: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	query := `SELECT id, mode, started_at, finished_at, duration_ms, request_count, error_count, report_json, error FROM run_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, paramCount)
		args = append(args, filter.Mode)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND started_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.RunRecord
	for rows.Next() {
		var r storage.RunRecord
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.Mode, &r.StartedAt, &r.FinishedAt,
			&durationMs, &r.RequestCount, &r.ErrorCount, &r.ReportJSON, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("storage/postgres: scan: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage/postgres: rows: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

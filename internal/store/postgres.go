// internal/store/postgres.go
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"copilot-metrics-service/internal/model"
)

// PostgresStore is a UsageStore backed by Postgres, for deployments that
// want counters to survive restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on top of an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, login string) (model.UsageRecord, bool, error) {
	var rec model.UsageRecord
	err := s.pool.QueryRow(ctx,
		`SELECT completions_accepted, completions_rejected, lines_generated, last_updated
		 FROM copilot_usage WHERE login = $1`, login,
	).Scan(&rec.CompletionsAccepted, &rec.CompletionsRejected, &rec.LinesGenerated, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UsageRecord{}, false, nil
	}
	if err != nil {
		return model.UsageRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, login string, rec model.UsageRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO copilot_usage (login, completions_accepted, completions_rejected, lines_generated, last_updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (login) DO UPDATE SET
		   completions_accepted = EXCLUDED.completions_accepted,
		   completions_rejected = EXCLUDED.completions_rejected,
		   lines_generated = EXCLUDED.lines_generated,
		   last_updated = EXCLUDED.last_updated`,
		login, rec.CompletionsAccepted, rec.CompletionsRejected, rec.LinesGenerated, rec.LastUpdated)
	return err
}

package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the generation_quota table.
const Schema = `
	CREATE TABLE IF NOT EXISTS generation_quota (
		user_id    TEXT PRIMARY KEY,
		month      TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL quota repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the quota table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create generation_quota table: %w", err)
	}
	return nil
}

// Get returns the stored counter for a user.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Usage, error) {
	query := `
		SELECT user_id, month, count
		FROM generation_quota
		WHERE user_id = $1
	`

	var usage Usage
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&usage.UserID,
		&usage.Month,
		&usage.Count,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}

	return &usage, nil
}

// Increment adds one generation in a single statement. The conditional upsert
// leaves the row untouched, and returns no row, once the month's count reaches limit.
func (r *PostgresRepository) Increment(ctx context.Context, userID, month string, limit int) (int, error) {
	query := `
		INSERT INTO generation_quota (user_id, month, count, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (user_id) DO UPDATE SET
			month = EXCLUDED.month,
			count = CASE
				WHEN generation_quota.month = EXCLUDED.month THEN generation_quota.count + 1
				ELSE 1
			END,
			updated_at = EXCLUDED.updated_at
		WHERE generation_quota.month <> EXCLUDED.month OR generation_quota.count < $3
		RETURNING count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, month, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		usage, err := r.Get(ctx, userID)
		if err != nil {
			return limit, ErrQuotaExceeded
		}
		return usage.Count, ErrQuotaExceeded
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Decrement removes one generation from the user's counter for month.
func (r *PostgresRepository) Decrement(ctx context.Context, userID, month string) error {
	query := `
		UPDATE generation_quota
		SET count = count - 1, updated_at = now()
		WHERE user_id = $1 AND month = $2 AND count > 0
	`

	_, err := r.pool.Exec(ctx, query, userID, month)
	return err
}

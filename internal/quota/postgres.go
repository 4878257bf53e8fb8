package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists quota usage in a shared table so multiple instances
// enforce the same budget. Rows are keyed by user and window start date:
//
//	CREATE TABLE quota_usage (
//	    user_id      TEXT NOT NULL,
//	    window_start DATE NOT NULL DEFAULT CURRENT_DATE,
//	    used         DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    PRIMARY KEY (user_id, window_start)
//	);
type Postgres struct {
	pool  *pgxpool.Pool
	limit float64
}

func NewPostgres(ctx context.Context, dsn string, limit float64) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("quota store ping: %w", err)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Postgres{pool: pool, limit: limit}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Get(ctx context.Context, userID string) (Snapshot, error) {
	var used float64
	err := p.pool.QueryRow(ctx,
		`SELECT used FROM quota_usage WHERE user_id = $1 AND window_start = CURRENT_DATE`,
		userID).Scan(&used)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("read quota for %s: %w", userID, err)
	}
	return Snapshot{
		Used:      used,
		Available: p.limit - used,
		Limit:     p.limit,
		Window:    DefaultWindow,
		Unit:      DefaultUnit,
	}, nil
}

func (p *Postgres) Increment(ctx context.Context, userID string, amount float64) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO quota_usage (user_id, window_start, used)
		 VALUES ($1, CURRENT_DATE, $2)
		 ON CONFLICT (user_id, window_start) DO UPDATE SET used = quota_usage.used + $2`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("debit quota for %s: %w", userID, err)
	}
	return nil
}

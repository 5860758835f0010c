package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherstudio/sandbox-backend/config"
	"github.com/cipherstudio/sandbox-backend/internal/storage/postgres"
)

type DBOptions struct {
	DSN       string
	ConnectTO time.Duration
	PingTO    time.Duration
}

// OpenDB opens the pgx pool used for migrations and health checks.
func OpenDB(ctx context.Context, opt DBOptions) (*pgxpool.Pool, error) {
	if opt.DSN == "" {
		return nil, fmt.Errorf("DB_DSN is not set")
	}
	if opt.ConnectTO == 0 {
		opt.ConnectTO = 5 * time.Second
	}
	if opt.PingTO == 0 {
		opt.PingTO = 2 * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, opt.ConnectTO)
	defer cancel()

	pool, err := pgxpool.New(cctx, opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pctx, pcancel := context.WithTimeout(ctx, opt.PingTO)
	defer pcancel()

	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return pool, nil
}

// Databases holds both handles onto the same Postgres database: the pgx pool
// runs migrations and health pings, the database/sql handle backs the
// repositories.
type Databases struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
}

func (d *Databases) Close() {
	if d.SQL != nil {
		_ = d.SQL.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// OpenDatabases connects, applies pending migrations and opens the
// repository handle.
func OpenDatabases(ctx context.Context, cfg *config.DatabaseConfig) (*Databases, error) {
	pool, err := OpenDB(ctx, DBOptions{DSN: cfg.PostgresDSN()})
	if err != nil {
		return nil, err
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := postgres.NewConnection(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Databases{Pool: pool, SQL: sqlDB}, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig overrides the pool sizing. Zero fields keep the defaults.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

func NewClient(ctx context.Context, connectionString string, poolCfg ...PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	for _, pc := range poolCfg {
		if pc.MaxConns > 0 {
			config.MaxConns = pc.MaxConns
		}
		if pc.MinConns > 0 {
			config.MinConns = pc.MinConns
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return pool, nil
}

// migrations run in order; every statement is idempotent.
var migrations = []struct {
	name  string
	query string
}{
	{
		name: "create reports table",
		query: `
		CREATE TABLE IF NOT EXISTS reports (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			vin TEXT NOT NULL DEFAULT 'Unknown',
			brand TEXT NOT NULL DEFAULT 'Unknown',
			model TEXT NOT NULL DEFAULT '',
			rating TEXT NOT NULL DEFAULT '',
			mileage TEXT NOT NULL DEFAULT '',
			record JSONB,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			html TEXT NOT NULL DEFAULT '',
			image_keys TEXT[] NOT NULL DEFAULT '{}',
			export_url TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`,
	},
	{
		name:  "index reports by vin",
		query: `CREATE INDEX IF NOT EXISTS idx_reports_vin ON reports (vin);`,
	},
	{
		name:  "index reports by creation time",
		query: `CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at DESC);`,
	},
}

// RunMigrations creates the reports schema if it does not exist.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.query); err != nil {
			return fmt.Errorf("migration %q failed: %w", m.name, err)
		}
		log.Debug().Str("migration", m.name).Msg("Migration applied")
	}
	log.Info().Int("count", len(migrations)).Msg("Migrations executed successfully")
	return nil
}

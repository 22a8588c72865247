package storage

import (
	"context"
	"fmt"

	"github.com/benchlab/benchcore/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &PostgresClient{pool: pool}
	if err := client.ensureSchema(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// ensureSchema creates the tables on first connect. The DDL is
// idempotent so a restart against an existing database is a no-op.
func (p *PostgresClient) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS measurements (
			id            BIGSERIAL PRIMARY KEY,
			instrument_id UUID NOT NULL,
			resource      TEXT NOT NULL,
			slot          INT NOT NULL DEFAULT 0,
			kind          TEXT NOT NULL,
			unit          TEXT NOT NULL,
			value         DOUBLE PRECISION NOT NULL,
			overload      BOOLEAN NOT NULL DEFAULT FALSE,
			taken_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_measurements_instrument_taken
			ON measurements (instrument_id, taken_at DESC);
		CREATE INDEX IF NOT EXISTS idx_measurements_taken
			ON measurements (taken_at);

		CREATE TABLE IF NOT EXISTS saved_configs (
			id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			instrument_type TEXT NOT NULL,
			name            TEXT NOT NULL,
			payload         JSONB NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (instrument_type, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}

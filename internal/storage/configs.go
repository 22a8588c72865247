package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveConfig upserts a named configuration for an instrument type.
func (p *PostgresClient) SaveConfig(ctx context.Context, instrumentType, name string, payload []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.pool.QueryRow(ctx, `
		INSERT INTO saved_configs (instrument_type, name, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (instrument_type, name)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
		RETURNING id
	`, instrumentType, name, payload).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save config: %w", err)
	}

	return id, nil
}

// GetConfig loads one saved configuration by id.
func (p *PostgresClient) GetConfig(ctx context.Context, id uuid.UUID) (SavedConfig, error) {
	var cfg SavedConfig
	err := p.pool.QueryRow(ctx, `
		SELECT id, instrument_type, name, payload, created_at, updated_at
		FROM saved_configs
		WHERE id = $1
	`, id).Scan(&cfg.ID, &cfg.InstrumentType, &cfg.Name, &cfg.Payload, &cfg.CreatedAt, &cfg.UpdatedAt)

	if err != nil {
		return SavedConfig{}, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// ListConfigs returns saved configurations, optionally filtered by instrument type.
func (p *PostgresClient) ListConfigs(ctx context.Context, instrumentType string) ([]SavedConfig, error) {
	query := `
		SELECT id, instrument_type, name, payload, created_at, updated_at
		FROM saved_configs
	`
	args := make([]any, 0, 1)
	if instrumentType != "" {
		query += " WHERE instrument_type = $1"
		args = append(args, instrumentType)
	}
	query += " ORDER BY name"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	configs := make([]SavedConfig, 0)

	for rows.Next() {
		var cfg SavedConfig
		err := rows.Scan(&cfg.ID, &cfg.InstrumentType, &cfg.Name, &cfg.Payload, &cfg.CreatedAt, &cfg.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// DeleteConfig removes a saved configuration.
func (p *PostgresClient) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM saved_configs
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}

	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return nil
}

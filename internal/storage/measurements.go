package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MeasurementFilter narrows a history query. Zero values mean "no filter".
type MeasurementFilter struct {
	InstrumentID uuid.UUID
	Kind         string
	Since        time.Time
	Until        time.Time
	Limit        int
}

// InsertMeasurements writes a batch of readings in one transaction.
func (p *PostgresClient) InsertMeasurements(ctx context.Context, rows []MeasurementRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO measurements (instrument_id, resource, slot, kind, unit, value, overload, taken_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, row.InstrumentID, row.Resource, row.Slot, row.Kind, row.Unit, row.Value, row.Overload, row.TakenAt)
		if err != nil {
			return fmt.Errorf("failed to insert measurement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// QueryMeasurements returns readings matching the filter, newest first.
func (p *PostgresClient) QueryMeasurements(ctx context.Context, filter MeasurementFilter) ([]MeasurementRow, error) {
	query := `
		SELECT id, instrument_id, resource, slot, kind, unit, value, overload, taken_at
		FROM measurements
		WHERE 1=1
	`
	args := make([]any, 0, 5)

	if filter.InstrumentID != uuid.Nil {
		args = append(args, filter.InstrumentID)
		query += fmt.Sprintf(" AND instrument_id = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND taken_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		query += fmt.Sprintf(" AND taken_at <= $%d", len(args))
	}

	query += " ORDER BY taken_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	results := make([]MeasurementRow, 0)

	for rows.Next() {
		var row MeasurementRow
		err := rows.Scan(&row.ID, &row.InstrumentID, &row.Resource, &row.Slot,
			&row.Kind, &row.Unit, &row.Value, &row.Overload, &row.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		results = append(results, row)
	}

	return results, nil
}

// PruneMeasurements deletes readings older than the cutoff and reports how many went.
func (p *PostgresClient) PruneMeasurements(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM measurements
		WHERE taken_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune measurements: %w", err)
	}

	return result.RowsAffected(), nil
}

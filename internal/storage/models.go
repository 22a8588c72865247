package storage

import (
	"time"

	"github.com/google/uuid"
)

type MeasurementRow struct {
	ID           int64     `json:"id"`
	InstrumentID uuid.UUID `json:"instrument_id"`
	Resource     string    `json:"resource"`
	Slot         int       `json:"slot"`
	Kind         string    `json:"kind"`
	Unit         string    `json:"unit"`
	Value        float64   `json:"value"`
	Overload     bool      `json:"overload"`
	TakenAt      time.Time `json:"taken_at"`
}

type SavedConfig struct {
	ID             uuid.UUID `json:"id"`
	InstrumentType string    `json:"instrument_type"`
	Name           string    `json:"name"`
	Payload        []byte    `json:"payload"` // JSONB
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

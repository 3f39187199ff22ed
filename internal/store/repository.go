package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mzagorski/onewired/internal/infrastructure/database"
)

// Counter kinds as stored in the counters table.
const (
	CounterKindRelay    = "relay"
	CounterKindSensor   = "sensor"
	CounterKindYeelight = "yeelight"
)

// Counter is one row of the counters table: how many times a device has
// triggered since the row was created.
type Counter struct {
	Kind      string    `json:"kind"`
	EntityID  int       `json:"entity_id"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists trigger counters in SQLite.
//
// Thread Safety: safe for concurrent use; the underlying pool serialises
// writers per SQLite's single-writer model.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository over the given database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// IncrementCounter bumps the counter for one device, creating the row on
// first use.
func (r *Repository) IncrementCounter(ctx context.Context, kind string, entityID int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO counters (kind, entity_id, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (kind, entity_id)
		DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
	`, kind, entityID, now)
	if err != nil {
		return fmt.Errorf("incrementing counter %s/%d: %w", kind, entityID, err)
	}
	return nil
}

// Counters returns all counter rows ordered by kind then entity id.
func (r *Repository) Counters(ctx context.Context) ([]Counter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, entity_id, count, updated_at
		FROM counters
		ORDER BY kind, entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying counters: %w", err)
	}
	defer rows.Close()

	var counters []Counter
	for rows.Next() {
		var c Counter
		var updatedAt string
		if err := rows.Scan(&c.Kind, &c.EntityID, &c.Count, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning counter row: %w", err)
		}
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counters: %w", err)
	}
	return counters, nil
}

// CounterValue returns the count for one device; zero if never triggered.
func (r *Repository) CounterValue(ctx context.Context, kind string, entityID int) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT count FROM counters WHERE kind = ? AND entity_id = ?
	`, kind, entityID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("querying counter %s/%d: %w", kind, entityID, err)
	}
	return count, nil
}

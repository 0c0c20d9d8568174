// Package history keeps an optional log of webhook deliveries and their outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcome classifies how a delivery ended.
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Delivery is one recorded webhook request.
type Delivery struct {
	DeliveryID string        `json:"delivery_id"`
	Event      string        `json:"event"`
	Branch     string        `json:"branch,omitempty"`
	Repository string        `json:"repository,omitempty"`
	Pusher     string        `json:"pusher,omitempty"`
	Status     int           `json:"status"`
	Outcome    Outcome       `json:"outcome"`
	Message    string        `json:"message"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	ReceivedAt time.Time     `json:"received_at"`
}

// Store persists deliveries in the deliveries table.
type Store struct {
	db *sql.DB
}

// New wraps an opened database. See storage.OpenSQLite.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends a delivery. Redeliveries of the same id get their own row.
func (s *Store) Record(ctx context.Context, d Delivery) error {
	if d.DeliveryID == "" {
		return fmt.Errorf("delivery id is empty")
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now()
	}

	var exitCode any
	if d.ExitCode != nil {
		exitCode = *d.ExitCode
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries(
  delivery_id, event, branch, repository, pusher, status, outcome, message,
  exit_code, duration_ms, received_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, d.DeliveryID, d.Event, d.Branch, d.Repository, d.Pusher, d.Status, string(d.Outcome), d.Message,
		exitCode, d.Duration.Milliseconds(), d.ReceivedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Recent returns up to limit deliveries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT delivery_id, event, branch, repository, pusher, status, outcome, message,
       exit_code, duration_ms, received_at
FROM deliveries
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d          Delivery
			branch     sql.NullString
			repository sql.NullString
			pusher     sql.NullString
			outcome    string
			exitCode   sql.NullInt64
			durationMS int64
			receivedAt string
		)
		if err := rows.Scan(&d.DeliveryID, &d.Event, &branch, &repository, &pusher, &d.Status,
			&outcome, &d.Message, &exitCode, &durationMS, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Branch = branch.String
		d.Repository = repository.String
		d.Pusher = pusher.String
		d.Outcome = Outcome(outcome)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			d.ExitCode = &code
		}
		d.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
			d.ReceivedAt = t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Session is a stored diagnosis session. Fields describing the result are
// nil until the session finished.
type Session struct {
	ID              uuid.UUID       `json:"id"`
	Source          string          `json:"source"`
	Status          *string         `json:"status,omitempty"`
	Observed        int             `json:"observed"`
	Pool            int             `json:"pool"`
	Iterations      int             `json:"iterations"`
	Entropy         *float64        `json:"entropy,omitempty"`
	Best            []string        `json:"best,omitempty"`
	BestProbability *float64        `json:"best_probability,omitempty"`
	Outcome         json.RawMessage `json:"outcome,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// StoredEvent is one persisted session event.
type StoredEvent struct {
	ID        int64           `json:"id"`
	Iteration int             `json:"iteration"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

const sessionColumns = `id, source, status, observed, pool, iterations, entropy, best, best_probability, outcome, started_at, finished_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var outcome []byte
	err := row.Scan(
		&s.ID, &s.Source, &s.Status, &s.Observed, &s.Pool, &s.Iterations,
		&s.Entropy, &s.Best, &s.BestProbability, &outcome, &s.StartedAt, &s.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		s.Outcome = outcome
	}
	return &s, nil
}

// CreateSession records the start of a session.
func (db *DB) CreateSession(ctx context.Context, id uuid.UUID, source string, observed, pool int) (*Session, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, source, observed, pool)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+sessionColumns,
		id, source, observed, pool,
	)
	return scanSession(row)
}

// AppendEvent stores ev under its session.
func (db *DB) AppendEvent(ctx context.Context, id uuid.UUID, ev tdp.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO session_events (session_id, iteration, type, payload) VALUES ($1, $2, $3, $4)`,
		id, ev.Iteration, string(ev.Type), payload,
	)
	return err
}

// FinishSession stores the outcome of a session.
func (db *DB) FinishSession(ctx context.Context, id uuid.UUID, out *tdp.Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	var best []string
	var bestProb *float64
	if out.Best != nil {
		best = out.Best.Components
		p := out.Best.Probability
		bestProb = &p
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $2, iterations = $3, entropy = $4, best = $5, best_probability = $6,
		     outcome = $7, finished_at = now()
		 WHERE id = $1`,
		id, string(out.Status), out.Iterations, out.Statistics.Entropy, best, bestProb, payload,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession returns a session, or nil if it does not exist.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// ListSessions returns sessions newest first.
func (db *DB) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListEvents returns the events of a session in the order they were stored.
func (db *DB) ListEvents(ctx context.Context, id uuid.UUID) ([]StoredEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, iteration, type, payload, created_at FROM session_events WHERE session_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Iteration, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

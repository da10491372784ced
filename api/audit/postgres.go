package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit entries; steps are stored as a JSONB
// column since they are only ever read back whole.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	steps, err := json.Marshal(e.Steps)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO remediation_attempts (attempt_id, service, triggered_by, outcome, started_at, finished_at, steps)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.AttemptID, e.Service, string(e.Trigger), string(e.Outcome), e.StartedAt, e.FinishedAt, steps,
	)
	return err
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT attempt_id, service, triggered_by, outcome, started_at, finished_at, steps
		 FROM remediation_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListByService(ctx context.Context, service string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT attempt_id, service, triggered_by, outcome, started_at, finished_at, steps
		 FROM remediation_attempts WHERE service = $1 ORDER BY started_at DESC LIMIT $2`, service, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) Get(ctx context.Context, attemptID string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT attempt_id, service, triggered_by, outcome, started_at, finished_at, steps
		 FROM remediation_attempts WHERE attempt_id = $1`, attemptID)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var trigger, outcome string
	var steps []byte
	if err := row.Scan(&e.AttemptID, &e.Service, &trigger, &outcome, &e.StartedAt, &e.FinishedAt, &steps); err != nil {
		return nil, err
	}
	e.Trigger = Trigger(trigger)
	e.Outcome = Outcome(outcome)
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &e.Steps); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

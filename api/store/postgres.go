package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"warden/api/model"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS remediation_attempts (
			attempt_id   TEXT PRIMARY KEY,
			service      TEXT NOT NULL,
			triggered_by TEXT NOT NULL,
			outcome      TEXT NOT NULL,
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ NOT NULL,
			steps        JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_service ON remediation_attempts(service, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_attempts_started ON remediation_attempts(started_at DESC);

		CREATE TABLE IF NOT EXISTS health_reports (
			id          BIGSERIAL PRIMARY KEY,
			service     TEXT NOT NULL,
			healthy     BOOLEAN NOT NULL,
			detail      JSONB NOT NULL DEFAULT '{}',
			observed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_service ON health_reports(service, observed_at DESC);
	`)
	return err
}

func (db *DB) InsertReport(ctx context.Context, r model.Report) error {
	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return err
	}
	if r.Detail == nil {
		detail = []byte("{}")
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO health_reports (service, healthy, detail, observed_at)
		 VALUES ($1, $2, $3, $4)`,
		r.Service, r.Healthy, detail, r.ObservedAt,
	)
	return err
}

func (db *DB) ListReports(ctx context.Context, service string, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT service, healthy, detail, observed_at
		 FROM health_reports WHERE service = $1
		 ORDER BY observed_at DESC LIMIT $2`,
		service, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var r model.Report
		var detail []byte
		if err := rows.Scan(&r.Service, &r.Healthy, &detail, &r.ObservedAt); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			json.Unmarshal(detail, &r.Detail)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// PruneReports drops report history older than a week. The audit log is
// never pruned.
func (db *DB) PruneReports(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM health_reports WHERE observed_at < now() - interval '7 days'`,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Healthy checks the database connection.
func (db *DB) Healthy(ctx context.Context) error {
	var n int
	return db.Pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}

// RemediationStats summarizes attempts over the last 24 hours.
type RemediationStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Timeouts  int `json:"timeouts"`
}

func (db *DB) DailyRemediationStats(ctx context.Context) (*RemediationStats, error) {
	s := &RemediationStats{}
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COUNT(*) FILTER (WHERE outcome = 'failure'),
			COUNT(*) FILTER (WHERE outcome = 'timeout')
		FROM remediation_attempts
		WHERE started_at >= now() - interval '24 hours'
	`).Scan(&s.Attempts, &s.Successes, &s.Failures, &s.Timeouts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

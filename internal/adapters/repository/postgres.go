package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"panelgauge/internal/domain/model"
)

// schema is applied on startup. Attendance carries a uniqueness constraint
// so re-appending an (author, day) pair is a no-op at the database level.
const schema = `
CREATE TABLE IF NOT EXISTS activity (
	id         BIGSERIAL PRIMARY KEY,
	epoch      BIGINT NOT NULL,
	author     TEXT NOT NULL,
	community  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS activity_epoch_idx ON activity (epoch);

CREATE TABLE IF NOT EXISTS attendance (
	author TEXT NOT NULL,
	day    DATE NOT NULL,
	PRIMARY KEY (author, day)
);
CREATE INDEX IF NOT EXISTS attendance_day_idx ON attendance (day);

CREATE TABLE IF NOT EXISTS panel_snapshots (
	epoch     BIGINT NOT NULL,
	community TEXT NOT NULL,
	category  TEXT NOT NULL,
	PRIMARY KEY (epoch, community)
);

CREATE TABLE IF NOT EXISTS calibration_factors (
	id          BIGSERIAL PRIMARY KEY,
	metric      TEXT NOT NULL,
	reported    DOUBLE PRECISION NOT NULL,
	proxy       DOUBLE PRECISION NOT NULL,
	factor      DOUBLE PRECISION NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	cause       TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS calibration_metric_idx ON calibration_factors (metric, id);
`

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with the given DSN and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// AppendActivity durably stores normalized activity records.
func (s *PostgresStore) AppendActivity(ctx context.Context, epoch int64, records []model.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activity tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activity (epoch, author, community, kind, created_at) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("prepare activity insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, epoch, rec.Author, rec.Community, string(rec.Kind), rec.Timestamp); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}
	return tx.Commit()
}

// AppendAttendance durably stores attendance facts, skipping duplicates.
func (s *PostgresStore) AppendAttendance(ctx context.Context, facts []model.AttendanceFact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attendance (author, day) VALUES ($1, $2) ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare attendance insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, f.Author, string(f.Day)); err != nil {
			return fmt.Errorf("insert attendance: %w", err)
		}
	}
	return tx.Commit()
}

// DaySet returns the distinct authors recorded for a day, sorted.
func (s *PostgresStore) DaySet(ctx context.Context, day model.Day) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT author FROM attendance WHERE day = $1 ORDER BY author`, string(day))
	if err != nil {
		return nil, fmt.Errorf("query day set: %w", err)
	}
	defer func() { _ = rows.Close() }()

	authors := make([]string, 0)
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan day set: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// DayRange returns per-day author sets for [from, to], inclusive.
func (s *PostgresStore) DayRange(ctx context.Context, from, to model.Day) (map[model.Day][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT to_char(day, 'YYYY-MM-DD'), author FROM attendance WHERE day BETWEEN $1 AND $2 ORDER BY day, author`,
		string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("query day range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.Day][]string)
	for rows.Next() {
		var day, author string
		if err := rows.Scan(&day, &author); err != nil {
			return nil, fmt.Errorf("scan day range: %w", err)
		}
		out[model.Day(day)] = append(out[model.Day(day)], author)
	}
	return out, rows.Err()
}

// SavePanel persists the frozen panel snapshot for an epoch.
func (s *PostgresStore) SavePanel(ctx context.Context, epoch int64, members []model.PanelMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin panel tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO panel_snapshots (epoch, community, category) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			epoch, m.Community, m.Category); err != nil {
			return fmt.Errorf("insert panel member: %w", err)
		}
	}
	return tx.Commit()
}

// Panel returns the persisted snapshot for an epoch.
func (s *PostgresStore) Panel(ctx context.Context, epoch int64) ([]model.PanelMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT community, category FROM panel_snapshots WHERE epoch = $1 ORDER BY community`, epoch)
	if err != nil {
		return nil, fmt.Errorf("query panel: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := make([]model.PanelMember, 0)
	for rows.Next() {
		m := model.PanelMember{JoinedEpoch: epoch}
		if err := rows.Scan(&m.Community, &m.Category); err != nil {
			return nil, fmt.Errorf("scan panel member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: panel epoch %d", ErrNotFound, epoch)
	}
	return members, nil
}

// AppendFactor appends one calibration factor to the log.
func (s *PostgresStore) AppendFactor(ctx context.Context, f model.CalibrationFactor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibration_factors (metric, reported, proxy, factor, confidence, cause, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(f.Metric), f.Reported, f.Proxy, f.Factor, f.Confidence, string(f.Cause), f.ComputedAt)
	if err != nil {
		return fmt.Errorf("insert factor: %w", err)
	}
	return nil
}

// Factors returns the factor log for a metric in append order.
func (s *PostgresStore) Factors(ctx context.Context, metric model.Metric) ([]model.CalibrationFactor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, reported, proxy, factor, confidence, cause, computed_at
		 FROM calibration_factors WHERE metric = $1 ORDER BY id`, string(metric))
	if err != nil {
		return nil, fmt.Errorf("query factors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	factors := make([]model.CalibrationFactor, 0)
	for rows.Next() {
		var f model.CalibrationFactor
		var m, cause string
		if err := rows.Scan(&m, &f.Reported, &f.Proxy, &f.Factor, &f.Confidence, &cause, &f.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan factor: %w", err)
		}
		f.Metric = model.Metric(m)
		f.Cause = model.CalibrationCause(cause)
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

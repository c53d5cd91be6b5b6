// Package history persists health check runs to a local SQLite
// database so results can be listed and trended over time. Only report
// summaries and numeric metrics are stored; connection strings are
// reduced to a short hash and never written to disk.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/jacobarthurs/pg-health/internal/health"
)

const schema = `
CREATE TABLE IF NOT EXISTS health_checks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	database_name TEXT NOT NULL,
	checked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	worst_severity TEXT NOT NULL,
	has_issues BOOLEAN NOT NULL,
	total_checks INTEGER NOT NULL,
	warnings INTEGER NOT NULL,
	criticals INTEGER NOT NULL,
	checks_json TEXT,
	connection_hash TEXT
);

CREATE INDEX IF NOT EXISTS idx_health_checks_db_time
ON health_checks(database_name, checked_at);

CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	database_name TEXT NOT NULL,
	checked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	metric_name TEXT NOT NULL,
	metric_value REAL,
	connection_hash TEXT
);

CREATE INDEX IF NOT EXISTS idx_metrics_db_metric_time
ON metrics(database_name, metric_name, checked_at);
`

// Store is a handle to the history database. Timestamps are stored as
// RFC 3339 UTC strings, which keeps lexical and chronological order
// identical for range scans.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath is where history lands unless PG_HEALTH_DATA_DIR points
// elsewhere.
func DefaultPath() (string, error) {
	dir := os.Getenv("PG_HEALTH_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".pg-health")
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open creates the database (and its parent directory) if needed and
// applies the schema. An empty path means DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("history store opened")
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// HashConn reduces a connection string to a short fingerprint so runs
// against the same server correlate without credentials touching disk.
func HashConn(connStr string) string {
	sum := sha256.Sum256([]byte(connStr))
	return hex.EncodeToString(sum[:])[:12]
}

// SavedCheck is the per-check record kept in checks_json; details and
// suggestions are deliberately not persisted.
type SavedCheck struct {
	Name     string          `json:"name"`
	Severity health.Severity `json:"severity"`
	Message  string          `json:"message"`
}

// SaveReport writes one summary row plus one metrics row per numeric
// finding metric (named "<CheckName>.<key>"), all in a single
// transaction. Returns the id of the summary row.
func (s *Store) SaveReport(ctx context.Context, report *health.Report, connHash string) (int64, error) {
	sum := report.Summary()
	checks := make([]SavedCheck, 0, len(report.Checks))
	for _, c := range report.Checks {
		checks = append(checks, SavedCheck{Name: c.Name, Severity: c.Severity, Message: c.Message})
	}
	checksJSON, err := json.Marshal(checks)
	if err != nil {
		return 0, fmt.Errorf("encoding checks: %w", err)
	}

	checkedAt := report.GeneratedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	stamp := checkedAt.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO health_checks
		(database_name, checked_at, worst_severity, has_issues, total_checks, warnings, criticals, checks_json, connection_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.DatabaseName, stamp, report.OverallStatus.String(), report.HasIssues(),
		sum.TotalChecks, sum.Warnings, sum.Criticals, string(checksJSON), connHash)
	if err != nil {
		return 0, fmt.Errorf("inserting report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}

	for _, c := range report.Checks {
		for key, value := range c.Metrics {
			v, ok := numeric(value)
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO metrics (database_name, checked_at, metric_name, metric_value, connection_hash)
				VALUES (?, ?, ?, ?, ?)`,
				report.DatabaseName, stamp, c.Name+"."+key, v, connHash); err != nil {
				return 0, fmt.Errorf("inserting metric %s.%s: %w", c.Name, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing report: %w", err)
	}
	log.Debug().Int64("id", id).Str("database", report.DatabaseName).Msg("report saved to history")
	return id, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Entry is one saved run's summary.
type Entry struct {
	ID            int64     `json:"id"`
	DatabaseName  string    `json:"database_name"`
	CheckedAt     time.Time `json:"checked_at"`
	WorstSeverity string    `json:"worst_severity"`
	HasIssues     bool      `json:"has_issues"`
	TotalChecks   int       `json:"total_checks"`
	Warnings      int       `json:"warnings"`
	Criticals     int       `json:"criticals"`
}

// History lists saved runs newest first. An empty database matches all
// databases; limit <= 0 falls back to 100 rows.
func (s *Store) History(ctx context.Context, database string, since time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, database_name, checked_at, worst_severity, has_issues, total_checks, warnings, criticals
		FROM health_checks WHERE checked_at >= ?`
	args := []any{since.UTC().Format(time.RFC3339)}
	if database != "" {
		query += ` AND database_name = ?`
		args = append(args, database)
	}
	query += ` ORDER BY checked_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var stamp string
		if err := rows.Scan(&e.ID, &e.DatabaseName, &stamp, &e.WorstSeverity, &e.HasIssues,
			&e.TotalChecks, &e.Warnings, &e.Criticals); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", stamp, err)
		}
		e.CheckedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Latest returns the most recent run for a database, or nil when the
// database has no history.
func (s *Store) Latest(ctx context.Context, database string) (*Entry, error) {
	entries, err := s.History(ctx, database, time.Time{}, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Run is one saved run in full: the summary row, the per-check results
// from checks_json, and the metric values recorded alongside it.
type Run struct {
	Entry
	Checks  []SavedCheck       `json:"checks"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// LoadRun fetches a run by id, including its checks and metrics.
func (s *Store) LoadRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, database_name, checked_at, worst_severity, has_issues, total_checks, warnings, criticals, checks_json
		FROM health_checks WHERE id = ?`, id)

	var run Run
	var stamp string
	var checksJSON sql.NullString
	err := row.Scan(&run.ID, &run.DatabaseName, &stamp, &run.WorstSeverity, &run.HasIssues,
		&run.TotalChecks, &run.Warnings, &run.Criticals, &checksJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %d: %w", id, err)
	}

	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", stamp, err)
	}
	run.CheckedAt = t

	if checksJSON.Valid && checksJSON.String != "" {
		if err := json.Unmarshal([]byte(checksJSON.String), &run.Checks); err != nil {
			return nil, fmt.Errorf("decoding checks for run %d: %w", id, err)
		}
	}

	// metrics recorded with a run share its database and timestamp
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_name, metric_value FROM metrics
		WHERE database_name = ? AND checked_at = ?`, run.DatabaseName, stamp)
	if err != nil {
		return nil, fmt.Errorf("loading metrics for run %d: %w", id, err)
	}
	defer rows.Close()

	run.Metrics = make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		run.Metrics[name] = value
	}
	return &run, rows.Err()
}

// MetricPoint is one sample of a trended metric.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricTrend returns samples of one metric oldest first, ready for
// plotting. Metric names follow the "<CheckName>.<key>" convention,
// e.g. "Cache Hit Ratio.ratio".
func (s *Store) MetricTrend(ctx context.Context, database, metric string, since time.Time) ([]MetricPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checked_at, metric_value FROM metrics
		WHERE database_name = ? AND metric_name = ? AND checked_at >= ?
		ORDER BY checked_at`,
		database, metric, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying metric trend: %w", err)
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var stamp string
		var value float64
		if err := rows.Scan(&stamp, &value); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", stamp, err)
		}
		points = append(points, MetricPoint{Timestamp: t, Value: value})
	}
	return points, rows.Err()
}

// Databases lists every database name with saved history, sorted.
func (s *Store) Databases(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx, `SELECT DISTINCT database_name FROM health_checks ORDER BY database_name`)
}

// Metrics lists the metric names recorded for a database, sorted.
func (s *Store) Metrics(ctx context.Context, database string) ([]string, error) {
	return s.stringColumn(ctx, `SELECT DISTINCT metric_name FROM metrics WHERE database_name = ? ORDER BY metric_name`, database)
}

func (s *Store) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Prune deletes runs and metrics recorded before the cutoff, returning
// how many runs were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	stamp := cutoff.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM health_checks WHERE checked_at < ?`, stamp)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE checked_at < ?`, stamp); err != nil {
		return 0, fmt.Errorf("pruning metrics: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}

	log.Debug().Int64("removed", removed).Time("cutoff", cutoff).Msg("history pruned")
	return removed, nil
}

package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacobarthurs/pg-health/internal/health"
)

type Options struct {
	MaxConns       int32
	ConnectTimeout time.Duration
}

// DB implements Client and Execer over a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

var (
	_ Client = (*DB)(nil)
	_ Execer = (*DB)(nil)
)

// Connect opens a pool and verifies it with a ping. Failures come back
// as *ConnectError.
func Connect(ctx context.Context, connStr string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(NormalizeConnString(connStr))
	if err != nil {
		return nil, &ConnectError{Err: err}
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ConnectError{Err: err}
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Exec runs a pre-built maintenance statement.
func (db *DB) Exec(ctx context.Context, sql string) error {
	_, err := db.pool.Exec(ctx, sql)
	return err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	var info DatabaseInfo
	err := db.pool.QueryRow(ctx, queryDatabaseInfo).Scan(&info.Name, &info.Version, &info.SizeBytes, &info.SizePretty)
	if err != nil {
		return nil, fmt.Errorf("querying database info: %w", err)
	}
	// keep the version readable: drop the compiler suffix
	if i := strings.Index(info.Version, ","); i >= 0 {
		info.Version = info.Version[:i]
	}
	return &info, nil
}

func (db *DB) CacheHitRatio(ctx context.Context) (*float64, error) {
	var ratio *float64
	if err := db.pool.QueryRow(ctx, queryCacheHitRatio).Scan(&ratio); err != nil {
		return nil, fmt.Errorf("querying cache hit ratio: %w", err)
	}
	return ratio, nil
}

func (db *DB) IndexHitRatio(ctx context.Context) (*float64, error) {
	var ratio *float64
	if err := db.pool.QueryRow(ctx, queryIndexHitRatio).Scan(&ratio); err != nil {
		return nil, fmt.Errorf("querying index hit ratio: %w", err)
	}
	return ratio, nil
}

func (db *DB) ConnectionStats(ctx context.Context) (*ConnectionStats, error) {
	var stats ConnectionStats
	err := db.pool.QueryRow(ctx, queryConnectionStats).Scan(&stats.Total, &stats.Active, &stats.Idle, &stats.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("querying connection stats: %w", err)
	}
	return &stats, nil
}

func (db *DB) ReplicationLag(ctx context.Context) (*int64, error) {
	var lag *int64
	if err := db.pool.QueryRow(ctx, queryReplicationLag).Scan(&lag); err != nil {
		return nil, fmt.Errorf("querying replication lag: %w", err)
	}
	return lag, nil
}

func (db *DB) LockWaits(ctx context.Context) (int64, error) {
	var waiting int64
	if err := db.pool.QueryRow(ctx, queryLockWaits).Scan(&waiting); err != nil {
		return 0, fmt.Errorf("querying lock waits: %w", err)
	}
	return waiting, nil
}

func scanVacuumStat(rows pgx.Rows) (health.VacuumStat, error) {
	var v health.VacuumStat
	err := rows.Scan(&v.Schema, &v.Table, &v.DeadTuples, &v.LiveTuples, &v.DeadPct,
		&v.LastVacuum, &v.LastAutovacuum, &v.TableSize)
	return v, err
}

func (db *DB) VacuumStats(ctx context.Context) ([]health.VacuumStat, error) {
	rows, err := db.pool.Query(ctx, queryVacuumStats)
	if err != nil {
		return nil, fmt.Errorf("querying vacuum stats: %w", err)
	}
	return collect(rows, scanVacuumStat)
}

func (db *DB) TableBloat(ctx context.Context) ([]health.VacuumStat, error) {
	rows, err := db.pool.Query(ctx, queryTableBloat)
	if err != nil {
		return nil, fmt.Errorf("querying table bloat: %w", err)
	}
	return collect(rows, scanVacuumStat)
}

func (db *DB) LongRunningQueries(ctx context.Context) ([]LongQuery, error) {
	rows, err := db.pool.Query(ctx, queryLongRunning)
	if err != nil {
		return nil, fmt.Errorf("querying long-running queries: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (LongQuery, error) {
		var q LongQuery
		err := rows.Scan(&q.PID, &q.DurationSeconds, &q.State, &q.Query)
		return q, err
	})
}

func (db *DB) UnusedIndexes(ctx context.Context) ([]health.IndexStat, error) {
	rows, err := db.pool.Query(ctx, queryUnusedIndexes)
	if err != nil {
		return nil, fmt.Errorf("querying unused indexes: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (health.IndexStat, error) {
		idx := health.IndexStat{IsUnused: true}
		err := rows.Scan(&idx.Schema, &idx.Table, &idx.Name, &idx.Size, &idx.SizeBytes, &idx.Scans)
		return idx, err
	})
}

func (db *DB) StatsResetTime(ctx context.Context) (*time.Time, error) {
	var reset *time.Time
	if err := db.pool.QueryRow(ctx, queryStatsReset).Scan(&reset); err != nil {
		return nil, fmt.Errorf("querying stats reset time: %w", err)
	}
	return reset, nil
}

func (db *DB) MissingPrimaryKeys(ctx context.Context) ([]TableRef, error) {
	rows, err := db.pool.Query(ctx, queryMissingPrimaryKeys)
	if err != nil {
		return nil, fmt.Errorf("querying missing primary keys: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (TableRef, error) {
		var ref TableRef
		err := rows.Scan(&ref.Schema, &ref.Name)
		return ref, err
	})
}

func (db *DB) SlowQueries(ctx context.Context) ([]health.SlowQuery, error) {
	rows, err := db.pool.Query(ctx, querySlowQueries)
	if err != nil {
		return nil, statStatementsErr(err)
	}
	queries, err := collect(rows, func(rows pgx.Rows) (health.SlowQuery, error) {
		var q health.SlowQuery
		err := rows.Scan(&q.Query, &q.Calls, &q.TotalTimeMS, &q.MeanTimeMS, &q.Rows)
		return q, err
	})
	if err != nil {
		return nil, statStatementsErr(err)
	}
	return queries, nil
}

// statStatementsErr maps "relation does not exist" onto the sentinel so
// callers can tell a missing extension from a real failure.
func statStatementsErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return ErrNoStatStatements
	}
	return fmt.Errorf("querying slow queries: %w", err)
}

func (db *DB) DuplicateIndexes(ctx context.Context) ([]DuplicateIndexGroup, error) {
	rows, err := db.pool.Query(ctx, queryDuplicateIndexes)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate indexes: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (DuplicateIndexGroup, error) {
		var g DuplicateIndexGroup
		err := rows.Scan(&g.Schema, &g.Table, &g.Indexes)
		return g, err
	})
}

func (db *DB) ForeignKeysWithoutIndexes(ctx context.Context) ([]ForeignKey, error) {
	rows, err := db.pool.Query(ctx, queryForeignKeysWithoutIndexes)
	if err != nil {
		return nil, fmt.Errorf("querying unindexed foreign keys: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (ForeignKey, error) {
		var fk ForeignKey
		err := rows.Scan(&fk.Table, &fk.Constraint, &fk.Definition)
		return fk, err
	})
}

func (db *DB) TransactionIDAges(ctx context.Context) ([]TableAge, error) {
	rows, err := db.pool.Query(ctx, queryTransactionIDAges)
	if err != nil {
		return nil, fmt.Errorf("querying transaction ID ages: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (TableAge, error) {
		var age TableAge
		err := rows.Scan(&age.Table, &age.XIDAge)
		return age, err
	})
}

func (db *DB) SecurityChecks(ctx context.Context) ([]SecurityCheck, error) {
	rows, err := db.pool.Query(ctx, querySecurityChecks)
	if err != nil {
		return nil, fmt.Errorf("querying security checks: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (SecurityCheck, error) {
		var check SecurityCheck
		err := rows.Scan(&check.Name, &check.Status)
		return check, err
	})
}

func (db *DB) Tablespaces(ctx context.Context) ([]Tablespace, error) {
	rows, err := db.pool.Query(ctx, queryTablespaces)
	if err != nil {
		return nil, fmt.Errorf("querying tablespaces: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (Tablespace, error) {
		var ts Tablespace
		err := rows.Scan(&ts.Name, &ts.Size)
		return ts, err
	})
}

func (db *DB) TableSizes(ctx context.Context) ([]health.TableStat, error) {
	rows, err := db.pool.Query(ctx, queryTableSizes)
	if err != nil {
		return nil, fmt.Errorf("querying table sizes: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (health.TableStat, error) {
		var t health.TableStat
		err := rows.Scan(&t.Schema, &t.Name, &t.RowCount, &t.TotalSize, &t.TableSize, &t.IndexSize)
		return t, err
	})
}

func (db *DB) SeqScanCandidates(ctx context.Context) ([]SeqScanTable, error) {
	rows, err := db.pool.Query(ctx, querySeqScanCandidates)
	if err != nil {
		return nil, fmt.Errorf("querying seq scan candidates: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (SeqScanTable, error) {
		var t SeqScanTable
		err := rows.Scan(&t.Schema, &t.Table, &t.SeqScans, &t.IdxScans, &t.LiveTuples, &t.TableSize, &t.SizeBytes)
		return t, err
	})
}

func (db *DB) LargeTables(ctx context.Context) ([]LargeTable, error) {
	rows, err := db.pool.Query(ctx, queryLargeTables)
	if err != nil {
		return nil, fmt.Errorf("querying large tables: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (LargeTable, error) {
		var t LargeTable
		err := rows.Scan(&t.Schema, &t.Table, &t.TotalBytes, &t.TotalSize, &t.RowCount)
		return t, err
	})
}

func (db *DB) OutdatedStats(ctx context.Context) ([]OutdatedTable, error) {
	rows, err := db.pool.Query(ctx, queryOutdatedStats)
	if err != nil {
		return nil, fmt.Errorf("querying outdated statistics: %w", err)
	}
	return collect(rows, func(rows pgx.Rows) (OutdatedTable, error) {
		var t OutdatedTable
		err := rows.Scan(&t.Schema, &t.Table, &t.ModsSinceAnalyze, &t.LiveTuples, &t.LastAnalyze, &t.LastAutoanalyze)
		return t, err
	})
}

func (db *DB) SharedBuffers(ctx context.Context) (string, error) {
	var setting string
	if err := db.pool.QueryRow(ctx, querySharedBuffers).Scan(&setting); err != nil {
		return "", fmt.Errorf("querying shared_buffers: %w", err)
	}
	return setting, nil
}

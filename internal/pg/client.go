// Package pg is the read-mostly PostgreSQL layer: one probe per
// statistic the checks consume, plus the statement executor used by
// fixes. Everything reads from the statistics catalogs; nothing here
// touches user data.
package pg

import (
	"context"
	"time"

	"github.com/jacobarthurs/pg-health/internal/health"
)

// Client exposes one probe per database statistic. Each probe issues a
// single query and fails independently of the others.
type Client interface {
	DatabaseInfo(ctx context.Context) (*DatabaseInfo, error)
	CacheHitRatio(ctx context.Context) (*float64, error)
	IndexHitRatio(ctx context.Context) (*float64, error)
	ConnectionStats(ctx context.Context) (*ConnectionStats, error)
	ReplicationLag(ctx context.Context) (*int64, error)
	LockWaits(ctx context.Context) (int64, error)
	VacuumStats(ctx context.Context) ([]health.VacuumStat, error)
	TableBloat(ctx context.Context) ([]health.VacuumStat, error)
	LongRunningQueries(ctx context.Context) ([]LongQuery, error)
	UnusedIndexes(ctx context.Context) ([]health.IndexStat, error)
	StatsResetTime(ctx context.Context) (*time.Time, error)
	MissingPrimaryKeys(ctx context.Context) ([]TableRef, error)
	SlowQueries(ctx context.Context) ([]health.SlowQuery, error)
	DuplicateIndexes(ctx context.Context) ([]DuplicateIndexGroup, error)
	ForeignKeysWithoutIndexes(ctx context.Context) ([]ForeignKey, error)
	TransactionIDAges(ctx context.Context) ([]TableAge, error)
	SecurityChecks(ctx context.Context) ([]SecurityCheck, error)
	Tablespaces(ctx context.Context) ([]Tablespace, error)
	TableSizes(ctx context.Context) ([]health.TableStat, error)
	SeqScanCandidates(ctx context.Context) ([]SeqScanTable, error)
	LargeTables(ctx context.Context) ([]LargeTable, error)
	OutdatedStats(ctx context.Context) ([]OutdatedTable, error)
	SharedBuffers(ctx context.Context) (string, error)
}

// Execer runs a single pre-built statement. The fix executor is its
// only consumer; keeping it separate from Client keeps probes read-only.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

type DatabaseInfo struct {
	Name       string
	Version    string
	SizeBytes  int64
	SizePretty string
}

type ConnectionStats struct {
	Total          int64
	Active         int64
	Idle           int64
	MaxConnections int64
}

// UsageRatio is connections in use relative to max_connections.
func (c ConnectionStats) UsageRatio() float64 {
	if c.MaxConnections == 0 {
		return 0
	}
	return float64(c.Total) / float64(c.MaxConnections)
}

type LongQuery struct {
	PID             int
	DurationSeconds float64
	State           string
	Query           string
}

type TableRef struct {
	Schema string
	Name   string
}

func (t TableRef) String() string {
	return t.Schema + "." + t.Name
}

// DuplicateIndexGroup is a set of indexes on one table covering the
// same key columns.
type DuplicateIndexGroup struct {
	Schema  string
	Table   string
	Indexes []string
}

type ForeignKey struct {
	Table      string
	Constraint string
	Definition string
}

type TableAge struct {
	Table  string
	XIDAge int64
}

type SecurityCheck struct {
	Name   string
	Status string
}

type Tablespace struct {
	Name string
	Size string
}

type SeqScanTable struct {
	Schema     string
	Table      string
	SeqScans   int64
	IdxScans   int64
	LiveTuples int64
	TableSize  string
	SizeBytes  int64
}

type LargeTable struct {
	Schema     string
	Table      string
	TotalBytes int64
	TotalSize  string
	RowCount   int64
}

type OutdatedTable struct {
	Schema           string
	Table            string
	ModsSinceAnalyze int64
	LiveTuples       int64
	LastAnalyze      *time.Time
	LastAutoanalyze  *time.Time
}

// Package pgtest provides a scriptable Client stand-in for tests. Every
// probe has an overridable Fn field; unset probes return a benign
// healthy default so tests only script what they assert on.
package pgtest

import (
	"context"
	"time"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
)

type Client struct {
	DatabaseInfoFn              func(ctx context.Context) (*pg.DatabaseInfo, error)
	CacheHitRatioFn             func(ctx context.Context) (*float64, error)
	IndexHitRatioFn             func(ctx context.Context) (*float64, error)
	ConnectionStatsFn           func(ctx context.Context) (*pg.ConnectionStats, error)
	ReplicationLagFn            func(ctx context.Context) (*int64, error)
	LockWaitsFn                 func(ctx context.Context) (int64, error)
	VacuumStatsFn               func(ctx context.Context) ([]health.VacuumStat, error)
	TableBloatFn                func(ctx context.Context) ([]health.VacuumStat, error)
	LongRunningQueriesFn        func(ctx context.Context) ([]pg.LongQuery, error)
	UnusedIndexesFn             func(ctx context.Context) ([]health.IndexStat, error)
	StatsResetTimeFn            func(ctx context.Context) (*time.Time, error)
	MissingPrimaryKeysFn        func(ctx context.Context) ([]pg.TableRef, error)
	SlowQueriesFn               func(ctx context.Context) ([]health.SlowQuery, error)
	DuplicateIndexesFn          func(ctx context.Context) ([]pg.DuplicateIndexGroup, error)
	ForeignKeysWithoutIndexesFn func(ctx context.Context) ([]pg.ForeignKey, error)
	TransactionIDAgesFn         func(ctx context.Context) ([]pg.TableAge, error)
	SecurityChecksFn            func(ctx context.Context) ([]pg.SecurityCheck, error)
	TablespacesFn               func(ctx context.Context) ([]pg.Tablespace, error)
	TableSizesFn                func(ctx context.Context) ([]health.TableStat, error)
	SeqScanCandidatesFn         func(ctx context.Context) ([]pg.SeqScanTable, error)
	LargeTablesFn               func(ctx context.Context) ([]pg.LargeTable, error)
	OutdatedStatsFn             func(ctx context.Context) ([]pg.OutdatedTable, error)
	SharedBuffersFn             func(ctx context.Context) (string, error)
}

var _ pg.Client = (*Client)(nil)

func (f *Client) DatabaseInfo(ctx context.Context) (*pg.DatabaseInfo, error) {
	if f.DatabaseInfoFn != nil {
		return f.DatabaseInfoFn(ctx)
	}
	return &pg.DatabaseInfo{Name: "testdb", Version: "PostgreSQL 16.2", SizeBytes: 1 << 30, SizePretty: "1024 MB"}, nil
}

func (f *Client) CacheHitRatio(ctx context.Context) (*float64, error) {
	if f.CacheHitRatioFn != nil {
		return f.CacheHitRatioFn(ctx)
	}
	return nil, nil
}

func (f *Client) IndexHitRatio(ctx context.Context) (*float64, error) {
	if f.IndexHitRatioFn != nil {
		return f.IndexHitRatioFn(ctx)
	}
	return nil, nil
}

func (f *Client) ConnectionStats(ctx context.Context) (*pg.ConnectionStats, error) {
	if f.ConnectionStatsFn != nil {
		return f.ConnectionStatsFn(ctx)
	}
	return &pg.ConnectionStats{Total: 5, Active: 1, Idle: 4, MaxConnections: 100}, nil
}

func (f *Client) ReplicationLag(ctx context.Context) (*int64, error) {
	if f.ReplicationLagFn != nil {
		return f.ReplicationLagFn(ctx)
	}
	return nil, nil
}

func (f *Client) LockWaits(ctx context.Context) (int64, error) {
	if f.LockWaitsFn != nil {
		return f.LockWaitsFn(ctx)
	}
	return 0, nil
}

func (f *Client) VacuumStats(ctx context.Context) ([]health.VacuumStat, error) {
	if f.VacuumStatsFn != nil {
		return f.VacuumStatsFn(ctx)
	}
	return nil, nil
}

func (f *Client) TableBloat(ctx context.Context) ([]health.VacuumStat, error) {
	if f.TableBloatFn != nil {
		return f.TableBloatFn(ctx)
	}
	return nil, nil
}

func (f *Client) LongRunningQueries(ctx context.Context) ([]pg.LongQuery, error) {
	if f.LongRunningQueriesFn != nil {
		return f.LongRunningQueriesFn(ctx)
	}
	return nil, nil
}

func (f *Client) UnusedIndexes(ctx context.Context) ([]health.IndexStat, error) {
	if f.UnusedIndexesFn != nil {
		return f.UnusedIndexesFn(ctx)
	}
	return nil, nil
}

func (f *Client) StatsResetTime(ctx context.Context) (*time.Time, error) {
	if f.StatsResetTimeFn != nil {
		return f.StatsResetTimeFn(ctx)
	}
	return nil, nil
}

func (f *Client) MissingPrimaryKeys(ctx context.Context) ([]pg.TableRef, error) {
	if f.MissingPrimaryKeysFn != nil {
		return f.MissingPrimaryKeysFn(ctx)
	}
	return nil, nil
}

func (f *Client) SlowQueries(ctx context.Context) ([]health.SlowQuery, error) {
	if f.SlowQueriesFn != nil {
		return f.SlowQueriesFn(ctx)
	}
	return nil, nil
}

func (f *Client) DuplicateIndexes(ctx context.Context) ([]pg.DuplicateIndexGroup, error) {
	if f.DuplicateIndexesFn != nil {
		return f.DuplicateIndexesFn(ctx)
	}
	return nil, nil
}

func (f *Client) ForeignKeysWithoutIndexes(ctx context.Context) ([]pg.ForeignKey, error) {
	if f.ForeignKeysWithoutIndexesFn != nil {
		return f.ForeignKeysWithoutIndexesFn(ctx)
	}
	return nil, nil
}

func (f *Client) TransactionIDAges(ctx context.Context) ([]pg.TableAge, error) {
	if f.TransactionIDAgesFn != nil {
		return f.TransactionIDAgesFn(ctx)
	}
	return []pg.TableAge{{Table: "public.orders", XIDAge: 1000000}}, nil
}

func (f *Client) SecurityChecks(ctx context.Context) ([]pg.SecurityCheck, error) {
	if f.SecurityChecksFn != nil {
		return f.SecurityChecksFn(ctx)
	}
	return []pg.SecurityCheck{{Name: "superuser_count", Status: "OK (1 superusers)"}}, nil
}

func (f *Client) Tablespaces(ctx context.Context) ([]pg.Tablespace, error) {
	if f.TablespacesFn != nil {
		return f.TablespacesFn(ctx)
	}
	return []pg.Tablespace{{Name: "pg_default", Size: "1024 MB"}}, nil
}

func (f *Client) TableSizes(ctx context.Context) ([]health.TableStat, error) {
	if f.TableSizesFn != nil {
		return f.TableSizesFn(ctx)
	}
	return nil, nil
}

func (f *Client) SeqScanCandidates(ctx context.Context) ([]pg.SeqScanTable, error) {
	if f.SeqScanCandidatesFn != nil {
		return f.SeqScanCandidatesFn(ctx)
	}
	return nil, nil
}

func (f *Client) LargeTables(ctx context.Context) ([]pg.LargeTable, error) {
	if f.LargeTablesFn != nil {
		return f.LargeTablesFn(ctx)
	}
	return nil, nil
}

func (f *Client) OutdatedStats(ctx context.Context) ([]pg.OutdatedTable, error) {
	if f.OutdatedStatsFn != nil {
		return f.OutdatedStatsFn(ctx)
	}
	return nil, nil
}

func (f *Client) SharedBuffers(ctx context.Context) (string, error) {
	if f.SharedBuffersFn != nil {
		return f.SharedBuffersFn(ctx)
	}
	return "128MB", nil
}

// Execer records every statement it is handed, failing where scripted.
type Execer struct {
	ExecFn     func(ctx context.Context, sql string) error
	Statements []string
}

var _ pg.Execer = (*Execer)(nil)

func (e *Execer) Exec(ctx context.Context, sql string) error {
	e.Statements = append(e.Statements, sql)
	if e.ExecFn != nil {
		return e.ExecFn(ctx, sql)
	}
	return nil
}

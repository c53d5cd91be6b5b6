package checks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/pg/pgtest"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

// --- Helpers ---

func f64(v float64) *float64 { return &v }

func i64(v int64) *int64 { return &v }

func runCheck(t *testing.T, fn RunFunc, src pg.Client) health.Finding {
	t.Helper()
	out, err := fn(context.Background(), src, thresholds.Defaults())
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	if len(out.Findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(out.Findings))
	}
	return out.Findings[0]
}

func requireSeverity(t *testing.T, f health.Finding, want health.Severity) {
	t.Helper()
	if f.Severity != want {
		t.Errorf("severity = %v, want %v (message: %s)", f.Severity, want, f.Message)
	}
}

func TestDatabaseSize_AlwaysInfo(t *testing.T) {
	f := runCheck(t, checkDatabaseSize, &pgtest.Client{})
	requireSeverity(t, f, health.Info)
	if f.Message != "Database size: 1024 MB" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestReplicationLag_Primary(t *testing.T) {
	f := runCheck(t, checkReplicationLag, &pgtest.Client{})
	requireSeverity(t, f, health.Info)
	if f.Message != "Not a replica (primary server)" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestReplicationLag_Levels(t *testing.T) {
	cases := []struct {
		lag  int64
		want health.Severity
	}{
		{5, health.OK},
		{10, health.OK},
		{30, health.Warning},
		{61, health.Critical},
	}
	for _, tc := range cases {
		src := &pgtest.Client{ReplicationLagFn: func(context.Context) (*int64, error) { return i64(tc.lag), nil }}
		f := runCheck(t, checkReplicationLag, src)
		requireSeverity(t, f, tc.want)
	}

	src := &pgtest.Client{ReplicationLagFn: func(context.Context) (*int64, error) { return i64(30), nil }}
	f := runCheck(t, checkReplicationLag, src)
	if f.Message != "Replication lag: 30s" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestLockWaits_Levels(t *testing.T) {
	cases := []struct {
		waiting int64
		want    health.Severity
	}{
		{0, health.OK},
		{5, health.OK},
		{6, health.Warning},
		{21, health.Critical},
	}
	for _, tc := range cases {
		src := &pgtest.Client{LockWaitsFn: func(context.Context) (int64, error) { return tc.waiting, nil }}
		f := runCheck(t, checkLockWaits, src)
		requireSeverity(t, f, tc.want)
		if !strings.Contains(f.Message, "waiting locks") {
			t.Errorf("message = %q", f.Message)
		}
	}
}

func TestCacheHitRatio_Levels(t *testing.T) {
	cases := []struct {
		ratio float64
		want  health.Severity
	}{
		{0.99, health.OK},
		{0.95, health.OK},
		{0.92, health.Warning},
		{0.89, health.Critical},
	}
	for _, tc := range cases {
		src := &pgtest.Client{CacheHitRatioFn: func(context.Context) (*float64, error) { return f64(tc.ratio), nil }}
		f := runCheck(t, checkCacheHitRatio, src)
		requireSeverity(t, f, tc.want)
	}
}

func TestCacheHitRatio_MessageAndSuggestion(t *testing.T) {
	src := &pgtest.Client{CacheHitRatioFn: func(context.Context) (*float64, error) { return f64(0.912), nil }}
	f := runCheck(t, checkCacheHitRatio, src)
	if f.Message != "Cache hit ratio: 91.2%" {
		t.Errorf("message = %q", f.Message)
	}
	if !strings.Contains(f.Suggestion, "shared_buffers") {
		t.Errorf("suggestion = %q", f.Suggestion)
	}
	if f.Metrics["ratio"] != 0.912 {
		t.Errorf("metrics ratio = %v", f.Metrics["ratio"])
	}
}

func TestCacheHitRatio_NoTraffic(t *testing.T) {
	f := runCheck(t, checkCacheHitRatio, &pgtest.Client{})
	requireSeverity(t, f, health.Info)
}

func TestIndexHitRatio_Warning(t *testing.T) {
	src := &pgtest.Client{IndexHitRatioFn: func(context.Context) (*float64, error) { return f64(0.93), nil }}
	f := runCheck(t, checkIndexHitRatio, src)
	requireSeverity(t, f, health.Warning)
	if !strings.HasPrefix(f.Message, "Index hit ratio:") {
		t.Errorf("message = %q", f.Message)
	}
}

func TestConnectionUsage_Levels(t *testing.T) {
	cases := []struct {
		total int64
		want  health.Severity
	}{
		{50, health.OK},
		{70, health.OK},
		{80, health.Warning},
		{95, health.Critical},
	}
	for _, tc := range cases {
		src := &pgtest.Client{ConnectionStatsFn: func(context.Context) (*pg.ConnectionStats, error) {
			return &pg.ConnectionStats{Total: tc.total, Active: 2, Idle: tc.total - 2, MaxConnections: 100}, nil
		}}
		f := runCheck(t, checkConnectionUsage, src)
		requireSeverity(t, f, tc.want)
	}

	src := &pgtest.Client{ConnectionStatsFn: func(context.Context) (*pg.ConnectionStats, error) {
		return &pg.ConnectionStats{Total: 80, Active: 10, Idle: 70, MaxConnections: 100}, nil
	}}
	f := runCheck(t, checkConnectionUsage, src)
	if f.Message != "80/100 connections (80%)" {
		t.Errorf("message = %q", f.Message)
	}
}

func vacuumRow(table string, dead, live int64) health.VacuumStat {
	pct := float64(dead) * 100 / float64(dead+live)
	return health.VacuumStat{Schema: "public", Table: table, DeadTuples: dead, LiveTuples: live, DeadPct: pct, TableSize: "100 MB"}
}

func TestVacuumStats_NoTables(t *testing.T) {
	f := runCheck(t, checkVacuumStats, &pgtest.Client{})
	requireSeverity(t, f, health.OK)
	if f.Message != "No tables with significant dead tuples" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestVacuumStats_BelowWarningIsInfo(t *testing.T) {
	src := &pgtest.Client{VacuumStatsFn: func(context.Context) ([]health.VacuumStat, error) {
		return []health.VacuumStat{vacuumRow("events", 50000, 500000)}, nil
	}}
	f := runCheck(t, checkVacuumStats, src)
	requireSeverity(t, f, health.Info)
}

func TestVacuumStats_Warning(t *testing.T) {
	src := &pgtest.Client{VacuumStatsFn: func(context.Context) ([]health.VacuumStat, error) {
		return []health.VacuumStat{vacuumRow("events", 250000, 500000), vacuumRow("logs", 20000, 400000)}, nil
	}}
	out, err := checkVacuumStats(context.Background(), src, thresholds.Defaults())
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	f := out.Findings[0]
	requireSeverity(t, f, health.Warning)
	if f.Message != "1 tables with > 100000 dead tuples (max: 250000)" {
		t.Errorf("message = %q", f.Message)
	}
	if len(out.VacuumStats) != 2 {
		t.Errorf("supplementary rows = %d, want 2", len(out.VacuumStats))
	}
}

func TestVacuumStats_Critical(t *testing.T) {
	src := &pgtest.Client{VacuumStatsFn: func(context.Context) ([]health.VacuumStat, error) {
		return []health.VacuumStat{vacuumRow("events", 1500000, 500000)}, nil
	}}
	f := runCheck(t, checkVacuumStats, src)
	requireSeverity(t, f, health.Critical)
}

func TestLongRunningQueries_Detected(t *testing.T) {
	src := &pgtest.Client{LongRunningQueriesFn: func(context.Context) ([]pg.LongQuery, error) {
		return []pg.LongQuery{
			{PID: 101, DurationSeconds: 720, State: "active", Query: "SELECT ..."},
			{PID: 102, DurationSeconds: 410, State: "active", Query: "UPDATE ..."},
		}, nil
	}}
	f := runCheck(t, checkLongRunningQueries, src)
	requireSeverity(t, f, health.Warning)
	if f.Message != "2 long-running queries detected" {
		t.Errorf("message = %q", f.Message)
	}
	if f.Metrics["longest_seconds"] != 720.0 {
		t.Errorf("longest_seconds = %v", f.Metrics["longest_seconds"])
	}
}

func unusedIndexRows(n int) []health.IndexStat {
	rows := make([]health.IndexStat, n)
	for i := range rows {
		rows[i] = health.IndexStat{Schema: "public", Table: "orders", Name: "idx_unused", SizeBytes: 1 << 20, Size: "1024 kB", IsUnused: true}
	}
	return rows
}

func TestUnusedIndexes_None(t *testing.T) {
	f := runCheck(t, checkUnusedIndexes, &pgtest.Client{})
	requireSeverity(t, f, health.OK)
}

func TestUnusedIndexes_FewIsInfo(t *testing.T) {
	src := &pgtest.Client{UnusedIndexesFn: func(context.Context) ([]health.IndexStat, error) {
		return unusedIndexRows(3), nil
	}}
	f := runCheck(t, checkUnusedIndexes, src)
	requireSeverity(t, f, health.Info)
}

func TestUnusedIndexes_ManyIsWarning(t *testing.T) {
	src := &pgtest.Client{UnusedIndexesFn: func(context.Context) ([]health.IndexStat, error) {
		return unusedIndexRows(6), nil
	}}
	f := runCheck(t, checkUnusedIndexes, src)
	requireSeverity(t, f, health.Warning)
	if !strings.HasPrefix(f.Message, "6 unused indexes found") {
		t.Errorf("message = %q", f.Message)
	}
}

func TestUnusedIndexes_FreshStatsNote(t *testing.T) {
	reset := time.Now().Add(-48 * time.Hour)
	src := &pgtest.Client{
		UnusedIndexesFn:  func(context.Context) ([]health.IndexStat, error) { return unusedIndexRows(2), nil },
		StatsResetTimeFn: func(context.Context) (*time.Time, error) { return &reset, nil },
	}
	f := runCheck(t, checkUnusedIndexes, src)
	if !strings.Contains(f.Message, "stats only 2d old - may be inaccurate") {
		t.Errorf("expected fresh-stats caveat, got: %q", f.Message)
	}
}

func TestUnusedIndexes_OldStatsNote(t *testing.T) {
	reset := time.Now().Add(-30 * 24 * time.Hour)
	src := &pgtest.Client{
		UnusedIndexesFn:  func(context.Context) ([]health.IndexStat, error) { return unusedIndexRows(2), nil },
		StatsResetTimeFn: func(context.Context) (*time.Time, error) { return &reset, nil },
	}
	f := runCheck(t, checkUnusedIndexes, src)
	if !strings.Contains(f.Message, "(since "+reset.Format("2006-01-02")+")") {
		t.Errorf("expected stats-reset date, got: %q", f.Message)
	}
}

func TestTableBloat_Levels(t *testing.T) {
	cases := []struct {
		pct  float64
		want health.Severity
	}{
		{5, health.OK},
		{15, health.Warning},
		{25, health.Critical},
	}
	for _, tc := range cases {
		src := &pgtest.Client{TableBloatFn: func(context.Context) ([]health.VacuumStat, error) {
			return []health.VacuumStat{{Schema: "public", Table: "events", DeadTuples: 5000, LiveTuples: 50000, DeadPct: tc.pct}}, nil
		}}
		f := runCheck(t, checkTableBloat, src)
		requireSeverity(t, f, tc.want)
	}
}

func TestTableBloat_MessageCountsBloatedOnly(t *testing.T) {
	src := &pgtest.Client{TableBloatFn: func(context.Context) ([]health.VacuumStat, error) {
		return []health.VacuumStat{
			{Schema: "public", Table: "a", DeadPct: 25},
			{Schema: "public", Table: "b", DeadPct: 15},
			{Schema: "public", Table: "c", DeadPct: 3},
		}, nil
	}}
	f := runCheck(t, checkTableBloat, src)
	requireSeverity(t, f, health.Critical)
	if f.Message != "2 tables with >10% dead tuples" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestMissingPrimaryKeys_Found(t *testing.T) {
	src := &pgtest.Client{MissingPrimaryKeysFn: func(context.Context) ([]pg.TableRef, error) {
		return []pg.TableRef{{Schema: "public", Name: "legacy_log"}}, nil
	}}
	f := runCheck(t, checkMissingPrimaryKeys, src)
	requireSeverity(t, f, health.Warning)
	if f.Message != "1 tables without primary keys" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestSlowQueries_ExtensionMissing(t *testing.T) {
	src := &pgtest.Client{SlowQueriesFn: func(context.Context) ([]health.SlowQuery, error) {
		return nil, pg.ErrNoStatStatements
	}}
	f := runCheck(t, checkSlowQueries, src)
	requireSeverity(t, f, health.Info)
	if f.Message != "pg_stat_statements extension not enabled" {
		t.Errorf("message = %q", f.Message)
	}
	if _, ok := f.Metrics["error"]; ok {
		t.Error("missing extension must not look like a probe failure")
	}
}

func TestSlowQueries_Found(t *testing.T) {
	src := &pgtest.Client{SlowQueriesFn: func(context.Context) ([]health.SlowQuery, error) {
		return []health.SlowQuery{
			{Query: "SELECT ...", Calls: 900, MeanTimeMS: 640.2, TotalTimeMS: 576180, Rows: 12},
		}, nil
	}}
	out, err := checkSlowQueries(context.Background(), src, thresholds.Defaults())
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	requireSeverity(t, out.Findings[0], health.Info)
	if out.Findings[0].Message != "1 slow queries found (slowest mean: 640ms)" {
		t.Errorf("message = %q", out.Findings[0].Message)
	}
	if len(out.SlowQueries) != 1 {
		t.Errorf("supplementary rows = %d, want 1", len(out.SlowQueries))
	}
}

func TestDuplicateIndexes_AnyPairWarns(t *testing.T) {
	src := &pgtest.Client{DuplicateIndexesFn: func(context.Context) ([]pg.DuplicateIndexGroup, error) {
		return []pg.DuplicateIndexGroup{{Schema: "public", Table: "orders", Indexes: []string{"idx_a", "idx_b"}}}, nil
	}}
	f := runCheck(t, checkDuplicateIndexes, src)
	requireSeverity(t, f, health.Warning)
	if f.Message != "1 duplicate index pair(s) found" {
		t.Errorf("message = %q", f.Message)
	}
}

func fkRows(n int) []pg.ForeignKey {
	rows := make([]pg.ForeignKey, n)
	for i := range rows {
		rows[i] = pg.ForeignKey{Table: "public.orders", Constraint: "orders_user_fk", Definition: "FOREIGN KEY (user_id) REFERENCES users(id)"}
	}
	return rows
}

func TestForeignKeyIndexes_FewIsInfo(t *testing.T) {
	src := &pgtest.Client{ForeignKeysWithoutIndexesFn: func(context.Context) ([]pg.ForeignKey, error) { return fkRows(2), nil }}
	f := runCheck(t, checkForeignKeyIndexes, src)
	requireSeverity(t, f, health.Info)
}

func TestForeignKeyIndexes_ManyIsWarning(t *testing.T) {
	src := &pgtest.Client{ForeignKeysWithoutIndexesFn: func(context.Context) ([]pg.ForeignKey, error) { return fkRows(4), nil }}
	f := runCheck(t, checkForeignKeyIndexes, src)
	requireSeverity(t, f, health.Warning)
}

func TestTransactionIDAge_Levels(t *testing.T) {
	cases := []struct {
		age  int64
		want health.Severity
	}{
		{100000000, health.OK},
		{600000000, health.Warning},
		{1200000000, health.Critical},
	}
	for _, tc := range cases {
		src := &pgtest.Client{TransactionIDAgesFn: func(context.Context) ([]pg.TableAge, error) {
			return []pg.TableAge{{Table: "public.orders", XIDAge: tc.age}}, nil
		}}
		f := runCheck(t, checkTransactionIDAge, src)
		requireSeverity(t, f, tc.want)
	}
}

func TestSecurity_Warnings(t *testing.T) {
	src := &pgtest.Client{SecurityChecksFn: func(context.Context) ([]pg.SecurityCheck, error) {
		return []pg.SecurityCheck{
			{Name: "public_schema_create", Status: "WARNING: public schema allows CREATE for all roles"},
			{Name: "superuser_count", Status: "OK (2 superusers)"},
		}, nil
	}}
	f := runCheck(t, checkSecurity, src)
	requireSeverity(t, f, health.Warning)
	if f.Message != "1 security warning(s)" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestTablespaces_AlwaysInfo(t *testing.T) {
	f := runCheck(t, checkTablespaces, &pgtest.Client{})
	requireSeverity(t, f, health.Info)
	if f.Message != "1 tablespace(s)" {
		t.Errorf("message = %q", f.Message)
	}
}

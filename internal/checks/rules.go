package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

const (
	// unused-index counts at or below this stay informational
	unusedIndexWarnCount = 5
	// stats younger than this carry an accuracy caveat
	freshStatsDays = 7
	// transaction IDs wrap at 2^31
	xidWraparound = 2147483648
)

func single(f health.Finding) Outcome {
	return Outcome{Findings: []health.Finding{f}}
}

func checkDatabaseSize(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	info, err := src.DatabaseInfo(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return single(health.Finding{
		Severity: health.Info,
		Message:  fmt.Sprintf("Database size: %s", info.SizePretty),
		Metrics:  map[string]any{"size_bytes": float64(info.SizeBytes), "size_pretty": info.SizePretty},
	}), nil
}

func checkReplicationLag(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	lag, err := src.ReplicationLag(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if lag == nil {
		return single(health.Finding{
			Severity: health.Info,
			Message:  "Not a replica (primary server)",
			Metrics:  map[string]any{"is_replica": false},
		}), nil
	}

	spec, _ := cfg.Spec(thresholds.ReplicationLag)
	f := health.Finding{
		Severity: spec.Classify(float64(*lag)),
		Message:  fmt.Sprintf("Replication lag: %ds", *lag),
		Metrics:  map[string]any{"lag_seconds": float64(*lag)},
	}
	if f.Severity >= health.Warning {
		f.Suggestion = "Check replica load and network throughput"
	}
	return single(f), nil
}

func checkLockWaits(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	waiting, err := src.LockWaits(ctx)
	if err != nil {
		return Outcome{}, err
	}

	spec, _ := cfg.Spec(thresholds.LockWaits)
	f := health.Finding{
		Severity: spec.Classify(float64(waiting)),
		Message:  fmt.Sprintf("%d waiting locks", waiting),
		Metrics:  map[string]any{"waiting_locks": float64(waiting)},
	}
	if f.Severity >= health.Warning {
		f.Suggestion = "Investigate blocking queries in pg_locks"
	}
	return single(f), nil
}

func hitRatioFinding(ratio *float64, spec thresholds.Spec, label string) health.Finding {
	if ratio == nil {
		return health.Finding{
			Severity: health.Info,
			Message:  "No block statistics available yet",
		}
	}
	f := health.Finding{
		Severity: spec.Classify(*ratio),
		Message:  fmt.Sprintf("%s: %.1f%%", label, *ratio*100),
		Metrics:  map[string]any{"ratio": *ratio},
	}
	if f.Severity >= health.Warning {
		f.Suggestion = "Consider increasing shared_buffers"
	}
	return f
}

func checkCacheHitRatio(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	ratio, err := src.CacheHitRatio(ctx)
	if err != nil {
		return Outcome{}, err
	}
	spec, _ := cfg.Spec(thresholds.CacheHitRatio)
	return single(hitRatioFinding(ratio, spec, "Cache hit ratio")), nil
}

func checkIndexHitRatio(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	ratio, err := src.IndexHitRatio(ctx)
	if err != nil {
		return Outcome{}, err
	}
	spec, _ := cfg.Spec(thresholds.IndexHitRatio)
	return single(hitRatioFinding(ratio, spec, "Index hit ratio")), nil
}

func checkConnectionUsage(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	stats, err := src.ConnectionStats(ctx)
	if err != nil {
		return Outcome{}, err
	}

	usage := stats.UsageRatio()
	spec, _ := cfg.Spec(thresholds.ConnectionUsage)
	f := health.Finding{
		Severity: spec.Classify(usage),
		Message:  fmt.Sprintf("%d/%d connections (%.0f%%)", stats.Total, stats.MaxConnections, usage*100),
		Metrics: map[string]any{
			"total":           float64(stats.Total),
			"active":          float64(stats.Active),
			"idle":            float64(stats.Idle),
			"max_connections": float64(stats.MaxConnections),
			"usage_ratio":     usage,
		},
	}
	if f.Severity >= health.Warning {
		f.Suggestion = "Consider using a connection pooler like pgbouncer"
	}
	return single(f), nil
}

func checkVacuumStats(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	rows, err := src.VacuumStats(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No tables with significant dead tuples",
			Metrics:  map[string]any{"tables": float64(0)},
		}), nil
	}

	spec, _ := cfg.Spec(thresholds.DeadTuples)
	var maxDead int64
	above := 0
	for _, r := range rows {
		if r.DeadTuples > maxDead {
			maxDead = r.DeadTuples
		}
		if float64(r.DeadTuples) > spec.Warning {
			above++
		}
	}

	f := health.Finding{
		Severity: spec.Classify(float64(maxDead)),
		Metrics:  map[string]any{"tables": float64(len(rows)), "max_dead_tuples": float64(maxDead)},
	}
	if above > 0 {
		f.Message = fmt.Sprintf("%d tables with > %.0f dead tuples (max: %d)", above, spec.Warning, maxDead)
		f.Suggestion = "Run VACUUM ANALYZE on affected tables"
	} else {
		// rows exist but none past the warning level
		f.Severity = health.Info
		f.Message = fmt.Sprintf("%d tables with accumulating dead tuples (max: %d)", len(rows), maxDead)
	}
	return Outcome{Findings: []health.Finding{f}, VacuumStats: rows}, nil
}

func checkLongRunningQueries(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	rows, err := src.LongRunningQueries(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No long-running queries",
			Metrics:  map[string]any{"count": float64(0)},
		}), nil
	}

	var longest float64
	for _, q := range rows {
		if q.DurationSeconds > longest {
			longest = q.DurationSeconds
		}
	}
	return single(health.Finding{
		Severity:   health.Warning,
		Message:    fmt.Sprintf("%d long-running queries detected", len(rows)),
		Metrics:    map[string]any{"count": float64(len(rows)), "longest_seconds": longest},
		Suggestion: "Check pg_stat_activity for blocked or stuck queries",
	}), nil
}

func checkUnusedIndexes(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	rows, err := src.UnusedIndexes(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No unused indexes",
			Metrics:  map[string]any{"count": float64(0)},
		}), nil
	}

	metrics := map[string]any{"count": float64(len(rows))}
	note := ""
	if reset, err := src.StatsResetTime(ctx); err == nil && reset != nil {
		days := int(time.Since(*reset).Hours() / 24)
		metrics["stats_age_days"] = float64(days)
		if days < freshStatsDays {
			note = fmt.Sprintf(" (stats only %dd old - may be inaccurate)", days)
		} else {
			note = fmt.Sprintf(" (since %s)", reset.Format("2006-01-02"))
		}
	}

	sev := health.Info
	if len(rows) > unusedIndexWarnCount {
		sev = health.Warning
	}
	f := health.Finding{
		Severity:   sev,
		Message:    fmt.Sprintf("%d unused indexes found%s", len(rows), note),
		Metrics:    metrics,
		Suggestion: "Review and drop unused indexes to save space and write overhead",
	}
	return Outcome{Findings: []health.Finding{f}, UnusedIndexes: rows}, nil
}

func checkTableBloat(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	rows, err := src.TableBloat(ctx)
	if err != nil {
		return Outcome{}, err
	}

	spec, _ := cfg.Spec(thresholds.TableBloatRatio)
	var maxPct float64
	worst := health.OK
	bloated := 0
	for _, r := range rows {
		if r.DeadPct > maxPct {
			maxPct = r.DeadPct
		}
		sev := spec.Classify(r.DeadPct / 100)
		if sev > worst {
			worst = sev
		}
		if sev >= health.Warning {
			bloated++
		}
	}
	if bloated == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No significant table bloat",
			Metrics:  map[string]any{"tables": float64(0), "max_dead_pct": maxPct},
		}), nil
	}

	return single(health.Finding{
		Severity:   worst,
		Message:    fmt.Sprintf("%d tables with >%.0f%% dead tuples", bloated, spec.Warning*100),
		Metrics:    map[string]any{"tables": float64(bloated), "max_dead_pct": maxPct},
		Suggestion: "Run VACUUM on bloated tables",
	}), nil
}

func checkMissingPrimaryKeys(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	rows, err := src.MissingPrimaryKeys(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "All tables have primary keys",
			Metrics:  map[string]any{"count": float64(0)},
		}), nil
	}
	return single(health.Finding{
		Severity:   health.Warning,
		Message:    fmt.Sprintf("%d tables without primary keys", len(rows)),
		Metrics:    map[string]any{"count": float64(len(rows))},
		Suggestion: "Add primary keys for replication and tooling support",
	}), nil
}

func checkSlowQueries(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	rows, err := src.SlowQueries(ctx)
	if errors.Is(err, pg.ErrNoStatStatements) {
		return single(health.Finding{
			Severity:   health.Info,
			Message:    "pg_stat_statements extension not enabled",
			Suggestion: "Add pg_stat_statements to shared_preload_libraries to track query performance",
		}), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No slow queries tracked",
			Metrics:  map[string]any{"count": float64(0)},
		}), nil
	}

	return Outcome{
		Findings: []health.Finding{{
			Severity: health.Info,
			Message:  fmt.Sprintf("%d slow queries found (slowest mean: %.0fms)", len(rows), rows[0].MeanTimeMS),
			Metrics:  map[string]any{"count": float64(len(rows)), "slowest_mean_ms": rows[0].MeanTimeMS},
		}},
		SlowQueries: rows,
	}, nil
}

func checkDuplicateIndexes(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	groups, err := src.DuplicateIndexes(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(groups) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No duplicate indexes",
			Metrics:  map[string]any{"pairs": float64(0)},
		}), nil
	}

	spec, _ := cfg.Spec(thresholds.DuplicateIndexes)
	return single(health.Finding{
		Severity:   spec.Classify(float64(len(groups))),
		Message:    fmt.Sprintf("%d duplicate index pair(s) found", len(groups)),
		Metrics:    map[string]any{"pairs": float64(len(groups))},
		Suggestion: "Drop redundant duplicate indexes after verifying overlap",
	}), nil
}

func checkForeignKeyIndexes(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	rows, err := src.ForeignKeysWithoutIndexes(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "All foreign keys indexed",
			Metrics:  map[string]any{"count": float64(0)},
		}), nil
	}

	spec, _ := cfg.Spec(thresholds.FKMissingIndexes)
	sev := spec.Classify(float64(len(rows)))
	if sev == health.OK {
		// a handful of unindexed FKs is worth mentioning, not flagging
		sev = health.Info
	}
	return single(health.Finding{
		Severity:   sev,
		Message:    fmt.Sprintf("%d foreign keys without indexes", len(rows)),
		Metrics:    map[string]any{"count": float64(len(rows))},
		Suggestion: "Add indexes on foreign key columns used in joins and cascading deletes",
	}), nil
}

func checkTransactionIDAge(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error) {
	rows, err := src.TransactionIDAges(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(rows) == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No user tables to check",
		}), nil
	}

	oldest := rows[0]
	for _, r := range rows {
		if r.XIDAge > oldest.XIDAge {
			oldest = r
		}
	}
	pct := float64(oldest.XIDAge) / xidWraparound * 100

	spec, _ := cfg.Spec(thresholds.TransactionIDAge)
	f := health.Finding{
		Severity: spec.Classify(float64(oldest.XIDAge)),
		Message:  fmt.Sprintf("Max XID age: %d (%.1f%% toward wraparound)", oldest.XIDAge, pct),
		Metrics:  map[string]any{"max_age": float64(oldest.XIDAge), "wraparound_pct": pct},
	}
	if f.Severity >= health.Warning {
		f.Suggestion = fmt.Sprintf("Run VACUUM FREEZE on the oldest tables, starting with %s", oldest.Table)
	}
	return single(f), nil
}

func checkSecurity(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	rows, err := src.SecurityChecks(ctx)
	if err != nil {
		return Outcome{}, err
	}

	warnings := 0
	for _, r := range rows {
		if strings.HasPrefix(r.Status, "WARNING") {
			warnings++
		}
	}
	if warnings == 0 {
		return single(health.Finding{
			Severity: health.OK,
			Message:  "No security warnings",
			Metrics:  map[string]any{"warnings": float64(0)},
		}), nil
	}
	return single(health.Finding{
		Severity:   health.Warning,
		Message:    fmt.Sprintf("%d security warning(s)", warnings),
		Metrics:    map[string]any{"warnings": float64(warnings)},
		Suggestion: "Review role privileges and public schema grants",
	}), nil
}

func checkTablespaces(ctx context.Context, src pg.Client, _ *thresholds.Config) (Outcome, error) {
	rows, err := src.Tablespaces(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return single(health.Finding{
		Severity: health.Info,
		Message:  fmt.Sprintf("%d tablespace(s)", len(rows)),
		Metrics:  map[string]any{"count": float64(len(rows))},
	}), nil
}

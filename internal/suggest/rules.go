package suggest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

const (
	// unused indexes larger than this are worth a medium-priority drop
	bigIndexBytes = 10000000
	// per-rule caps so one noisy table class cannot flood the list
	maxIndexRecs     = 5
	maxAnalyzeList   = 5
	maxSeqScanRecs   = 5
	maxSlowQueryRecs = 3
	// seq-scan tables below these floors are left alone
	seqScanMinRows  = 50000
	seqScanMinBytes = 50000000
	// partitioning only pays off past this size
	partitionBytes = 10 << 30
	// analyze when this many rows changed since the last one
	staleModsFloor = 10000
	// slow-query review cutoffs, mean milliseconds
	slowQueryMS     = 500
	slowQueryHighMS = 1000
	// dead tuples past this count escalate a vacuum to high priority
	highDeadTuples = 500000
)

// Build derives recommendations from a report and an analysis snapshot.
// It is pure: same inputs, same output, no database access.
func Build(report *health.Report, analysis *Analysis, cfg *thresholds.Config) []Recommendation {
	if report == nil {
		return nil
	}
	if analysis == nil {
		analysis = &Analysis{}
	}
	if cfg == nil {
		cfg = thresholds.Defaults()
	}

	var recs []Recommendation
	recs = append(recs, bufferCacheRecs(analysis, cfg)...)
	recs = append(recs, unusedIndexRecs(report.UnusedIndexes)...)
	recs = append(recs, vacuumRecs(report.VacuumStats, cfg)...)
	recs = append(recs, seqScanRecs(analysis.SeqScans)...)
	recs = append(recs, partitionRecs(analysis.LargeTables)...)
	recs = append(recs, analyzeRecs(analysis.OutdatedStats)...)
	recs = append(recs, slowQueryRecs(report.SlowQueries)...)
	recs = append(recs, connectionRecs(analysis.Connections, cfg)...)
	recs = append(recs, replicationRecs(analysis.ReplicationLag, cfg)...)
	recs = append(recs, lockRecs(analysis.LockWaits, cfg)...)

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority.tier() != recs[j].Priority.tier() {
			return recs[i].Priority.tier() < recs[j].Priority.tier()
		}
		return recs[i].magnitude > recs[j].magnitude
	})
	return recs
}

func bufferCacheRecs(a *Analysis, cfg *thresholds.Config) []Recommendation {
	ratio, label, spec := a.CacheHitRatio, "Cache", specFor(cfg, thresholds.CacheHitRatio)
	if sevOf(ratio, spec) < health.Warning {
		ratio, label, spec = a.IndexHitRatio, "Index", specFor(cfg, thresholds.IndexHitRatio)
		if sevOf(ratio, spec) < health.Warning {
			return nil
		}
	}

	current := a.SharedBuffers
	if current == "" {
		current = "unknown"
	}
	return []Recommendation{{
		Priority: escalate(spec.Classify(*ratio)),
		Title:    "Increase shared_buffers",
		Why:      fmt.Sprintf("%s hit ratio is %.1f%% (should be >%.0f%%)", label, *ratio*100, spec.Warning*100),
		Impact:   "Better cache hit ratio means faster queries",
		Action:   ConfigAction(fmt.Sprintf("Edit postgresql.conf, set shared_buffers to ~25%% of RAM. Current: %s", current)),
	}}
}

func unusedIndexRecs(indexes []health.IndexStat) []Recommendation {
	if len(indexes) == 0 {
		return nil
	}

	var totalWasted int64
	for _, idx := range indexes {
		totalWasted += idx.SizeBytes
	}

	var recs []Recommendation
	for _, idx := range indexes[:min(len(indexes), maxIndexRecs)] {
		priority := Low
		if idx.SizeBytes > bigIndexBytes {
			priority = Medium
		}
		recs = append(recs, Recommendation{
			Priority:  priority,
			Title:     fmt.Sprintf("Drop unused index %s", idx.Name),
			Why:       fmt.Sprintf("0 scans since stats reset, %s wasted", idx.Size),
			Impact:    fmt.Sprintf("Free %s disk space, faster writes", idx.Size),
			Action:    SQLAction(dropIndexSQL(idx.Schema, idx.Name)),
			FixType:   "unused-indexes",
			magnitude: idx.SizeBytes,
		})
	}
	if len(indexes) > maxIndexRecs {
		recs = append(recs, Recommendation{
			Priority:  Medium,
			Title:     fmt.Sprintf("Review %d more unused indexes", len(indexes)-maxIndexRecs),
			Why:       fmt.Sprintf("Total %s wasted on unused indexes", formatBytes(totalWasted)),
			Action:    ConfigAction("Run `pg-health fix unused-indexes --dry-run` to see all"),
			FixType:   "unused-indexes",
			magnitude: totalWasted,
		})
	}
	return recs
}

func vacuumRecs(rows []health.VacuumStat, cfg *thresholds.Config) []Recommendation {
	deadSpec := specFor(cfg, thresholds.DeadTuples)
	bloatSpec := specFor(cfg, thresholds.TableBloatRatio)

	var recs []Recommendation
	for _, vt := range rows {
		if vt.DeadPct <= bloatSpec.Warning*100 && float64(vt.DeadTuples) <= deadSpec.Warning {
			continue
		}
		priority := Medium
		if vt.DeadPct > bloatSpec.Critical*100 || vt.DeadTuples > highDeadTuples {
			priority = High
		}
		recs = append(recs, Recommendation{
			Priority:  priority,
			Title:     fmt.Sprintf("VACUUM ANALYZE %s.%s", vt.Schema, vt.Table),
			Why:       fmt.Sprintf("%s dead tuples (%.1f%% bloat)", group(vt.DeadTuples), vt.DeadPct),
			Impact:    "Reclaim disk space, improve query performance",
			Action:    SQLAction(vacuumSQL(vt.Schema, vt.Table)),
			FixType:   "vacuum",
			magnitude: vt.DeadTuples,
		})
	}
	return recs
}

func seqScanRecs(rows []pg.SeqScanTable) []Recommendation {
	var recs []Recommendation
	for _, sst := range rows[:min(len(rows), maxSeqScanRecs)] {
		if sst.LiveTuples <= seqScanMinRows || sst.SizeBytes <= seqScanMinBytes {
			continue
		}
		recs = append(recs, Recommendation{
			Priority:  Medium,
			Title:     fmt.Sprintf("Consider adding index on %s.%s", sst.Schema, sst.Table),
			Why:       fmt.Sprintf("%s sequential scans on %s rows (%s)", group(sst.SeqScans), group(sst.LiveTuples), sst.TableSize),
			Impact:    "Index could significantly speed up queries",
			Action:    ConfigAction("Analyze query patterns to identify which columns to index"),
			magnitude: sst.SizeBytes,
		})
	}
	return recs
}

func partitionRecs(rows []pg.LargeTable) []Recommendation {
	var recs []Recommendation
	for _, lt := range rows {
		if lt.TotalBytes <= partitionBytes {
			continue
		}
		recs = append(recs, Recommendation{
			Priority:  Low,
			Title:     fmt.Sprintf("Consider partitioning %s.%s", lt.Schema, lt.Table),
			Why:       fmt.Sprintf("Table is %s with %s rows", lt.TotalSize, group(lt.RowCount)),
			Impact:    "Improved query performance, easier maintenance",
			Action:    ConfigAction("Partition by date/time column if available, or by range/list"),
			magnitude: lt.TotalBytes,
		})
	}
	return recs
}

func analyzeRecs(rows []pg.OutdatedTable) []Recommendation {
	var idents []string
	var totalMods int64
	for _, ot := range rows {
		if ot.ModsSinceAnalyze <= staleModsFloor {
			continue
		}
		idents = append(idents, pgx.Identifier{ot.Schema, ot.Table}.Sanitize())
		totalMods += ot.ModsSinceAnalyze
	}
	if len(idents) == 0 {
		return nil
	}

	sql := "ANALYZE " + strings.Join(idents[:min(len(idents), maxAnalyzeList)], ", ") + ";"
	return []Recommendation{{
		Priority:  Medium,
		Title:     "Update table statistics",
		Why:       fmt.Sprintf("%d tables have outdated statistics", len(idents)),
		Impact:    "Better query plans with accurate statistics",
		Action:    SQLAction(sql),
		FixType:   "analyze",
		magnitude: totalMods,
	}}
}

func slowQueryRecs(rows []health.SlowQuery) []Recommendation {
	var recs []Recommendation
	for _, sq := range rows[:min(len(rows), maxSlowQueryRecs)] {
		if sq.MeanTimeMS <= slowQueryMS {
			continue
		}
		priority := Medium
		if sq.MeanTimeMS > slowQueryHighMS {
			priority = High
		}
		recs = append(recs, Recommendation{
			Priority:  priority,
			Title:     "Optimize slow query",
			Why:       fmt.Sprintf("Query averaging %.0fms (%s calls)", sq.MeanTimeMS, group(sq.Calls)),
			Impact:    fmt.Sprintf("~%.0fms saved per call", sq.MeanTimeMS),
			Action:    ConfigAction(fmt.Sprintf("Review query plan: %s...", truncate(sq.Query, 100))),
			magnitude: int64(sq.MeanTimeMS),
		})
	}
	return recs
}

func connectionRecs(stats *pg.ConnectionStats, cfg *thresholds.Config) []Recommendation {
	if stats == nil {
		return nil
	}
	usage := stats.UsageRatio()
	spec := specFor(cfg, thresholds.ConnectionUsage)
	sev := spec.Classify(usage)
	if sev < health.Warning {
		return nil
	}
	return []Recommendation{{
		Priority: escalate(sev),
		Title:    "Connection pool nearing limit",
		Why:      fmt.Sprintf("Using %d/%d connections (%.0f%%)", stats.Total, stats.MaxConnections, usage*100),
		Impact:   "May cause connection refused errors",
		Action:   ConfigAction("Consider using connection pooler (PgBouncer) or increasing max_connections"),
	}}
}

func replicationRecs(lag *int64, cfg *thresholds.Config) []Recommendation {
	if lag == nil {
		return nil
	}
	spec := specFor(cfg, thresholds.ReplicationLag)
	sev := spec.Classify(float64(*lag))
	if sev < health.Warning {
		return nil
	}
	return []Recommendation{{
		Priority:  escalate(sev),
		Title:     "High replication lag",
		Why:       fmt.Sprintf("Replica is %ds behind primary", *lag),
		Impact:    "Stale reads, potential data loss if failover occurs",
		Action:    ConfigAction("Check network latency, disk I/O, and write load on primary"),
		magnitude: *lag,
	}}
}

func lockRecs(waiting int64, cfg *thresholds.Config) []Recommendation {
	spec := specFor(cfg, thresholds.LockWaits)
	sev := spec.Classify(float64(waiting))
	if sev < health.Warning {
		return nil
	}
	return []Recommendation{{
		Priority:  escalate(sev),
		Title:     "High lock contention",
		Why:       fmt.Sprintf("%d queries waiting for locks", waiting),
		Impact:    "Queries blocked, potential deadlocks",
		Action:    ConfigAction("Identify blocking queries with pg_blocking_pids()"),
		magnitude: waiting,
	}}
}

// --- Helpers ---

var grouped = message.NewPrinter(language.English)

// group renders n with thousands separators.
func group(n int64) string { return grouped.Sprintf("%d", n) }

func specFor(cfg *thresholds.Config, key string) thresholds.Spec {
	s, _ := cfg.Spec(key)
	return s
}

func sevOf(ratio *float64, spec thresholds.Spec) health.Severity {
	if ratio == nil {
		return health.OK
	}
	return spec.Classify(*ratio)
}

func escalate(sev health.Severity) Priority {
	if sev == health.Critical {
		return High
	}
	return Medium
}

func dropIndexSQL(schema, index string) string {
	return fmt.Sprintf("DROP INDEX %s;", pgx.Identifier{schema, index}.Sanitize())
}

func vacuumSQL(schema, table string) string {
	return fmt.Sprintf("VACUUM ANALYZE %s;", pgx.Identifier{schema, table}.Sanitize())
}

func formatBytes(n int64) string {
	v := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if v < 1024 {
			return fmt.Sprintf("%.1f%s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1fPB", v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

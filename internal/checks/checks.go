// Package checks holds the health check registry and the evaluator
// that turns probe results into a classified report.
package checks

import (
	"context"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

// RunFunc is one health check: a deterministic function of its probe
// rows and the resolved thresholds. Checks never mutate shared state
// and never depend on each other's results.
type RunFunc func(ctx context.Context, src pg.Client, cfg *thresholds.Config) (Outcome, error)

type Check struct {
	Name        string
	Description string
	Run         RunFunc
}

// Outcome carries a check's findings plus any supplementary report rows
// the check's probe produced along the way.
type Outcome struct {
	Findings      []health.Finding
	Tables        []health.TableStat
	UnusedIndexes []health.IndexStat
	SlowQueries   []health.SlowQuery
	VacuumStats   []health.VacuumStat
}

var defaultChecks = []Check{
	{Name: "Database Size", Description: "Total on-disk size of the database", Run: checkDatabaseSize},
	{Name: "Replication Lag", Description: "Apply lag when running as a replica", Run: checkReplicationLag},
	{Name: "Lock Waits", Description: "Queries waiting on locks", Run: checkLockWaits},
	{Name: "Cache Hit Ratio", Description: "Buffer cache efficiency for table reads", Run: checkCacheHitRatio},
	{Name: "Index Hit Ratio", Description: "Buffer cache efficiency for index reads", Run: checkIndexHitRatio},
	{Name: "Connection Usage", Description: "Connections in use against max_connections", Run: checkConnectionUsage},
	{Name: "Vacuum Stats", Description: "Dead tuple accumulation per table", Run: checkVacuumStats},
	{Name: "Long Running Queries", Description: "Queries active for more than five minutes", Run: checkLongRunningQueries},
	{Name: "Unused Indexes", Description: "Indexes never scanned since stats reset", Run: checkUnusedIndexes},
	{Name: "Table Bloat", Description: "Dead-tuple ratio per table", Run: checkTableBloat},
	{Name: "Missing Primary Keys", Description: "Tables without a primary key", Run: checkMissingPrimaryKeys},
	{Name: "Slow Queries", Description: "Statements with high mean execution time", Run: checkSlowQueries},
	{Name: "Duplicate Indexes", Description: "Indexes covering identical columns", Run: checkDuplicateIndexes},
	{Name: "FK Missing Indexes", Description: "Foreign keys without a covering index", Run: checkForeignKeyIndexes},
	{Name: "Transaction ID Age", Description: "Distance to transaction ID wraparound", Run: checkTransactionIDAge},
	{Name: "Security Checks", Description: "Role and schema privilege audit", Run: checkSecurity},
	{Name: "Tablespace Usage", Description: "Configured tablespaces and sizes", Run: checkTablespaces},
}

// Registry returns the default check set in evaluation order.
func Registry() []Check {
	checks := make([]Check, len(defaultChecks))
	copy(checks, defaultChecks)
	return checks
}

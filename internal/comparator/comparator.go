// Package comparator diffs two health check runs, typically a run
// from before a maintenance change against one taken after it. Checks
// match by name; improvement and regression follow severity, with
// metric movements reported alongside.
package comparator

import (
	"strings"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/history"
)

// Comparator holds the significance threshold: metric movements whose
// percent change stays at or below it are treated as noise.
type Comparator struct {
	Threshold float64
}

func (c *Comparator) Compare(old, new Snapshot) ComparisonResult {
	deltas := c.diffChecks(old, new)

	summary := Summary{
		OldStatus: old.Status,
		NewStatus: new.Status,
		StatusDir: severityDirection(old.Status, new.Status),
	}
	summary.OldWarnings, summary.OldCriticals = countSeverities(old.Checks)
	summary.NewWarnings, summary.NewCriticals = countSeverities(new.Checks)

	countChanges(deltas, &summary)
	summary.Verdict = verdict(summary)

	return ComparisonResult{
		Old:     RunMeta{Database: old.Database, CheckedAt: old.CheckedAt},
		New:     RunMeta{Database: new.Database, CheckedAt: new.CheckedAt},
		Deltas:  deltas,
		Summary: summary,
	}
}

func countChanges(deltas []CheckDelta, summary *Summary) {
	for _, d := range deltas {
		switch d.ChangeType {
		case Added:
			summary.ChecksAdded++
		case Removed:
			summary.ChecksRemoved++
		case Modified:
			switch d.SeverityDir {
			case Improved:
				summary.ChecksImproved++
			case Regressed:
				summary.ChecksRegressed++
			default:
				summary.ChecksModified++
			}
		}
	}
}

func countSeverities(checks []Check) (warnings, criticals int) {
	for _, ck := range checks {
		switch ck.Severity {
		case health.Warning:
			warnings++
		case health.Critical:
			criticals++
		}
	}
	return warnings, criticals
}

func verdict(s Summary) string {
	switch {
	case s.ChecksImproved > 0 && s.ChecksRegressed > 0:
		return "mixed results"
	case s.ChecksImproved > 0:
		return "improved"
	case s.ChecksRegressed > 0:
		return "regressed"
	}
	return "no significant change"
}

// SnapshotFromReport converts a full report, keeping only the numeric
// finding metrics.
func SnapshotFromReport(r *health.Report) Snapshot {
	checks := make([]Check, 0, len(r.Checks))
	for _, f := range r.Checks {
		ck := Check{Name: f.Name, Severity: f.Severity, Message: f.Message}
		for key, value := range f.Metrics {
			v, ok := toFloat(value)
			if !ok {
				continue
			}
			if ck.Metrics == nil {
				ck.Metrics = make(map[string]float64)
			}
			ck.Metrics[key] = v
		}
		checks = append(checks, ck)
	}
	return Snapshot{
		Database:  r.DatabaseName,
		CheckedAt: r.GeneratedAt,
		Status:    r.OverallStatus,
		Checks:    checks,
	}
}

// SnapshotFromRun converts a saved history run. Stored metric names
// follow "<check name>.<key>" and are routed back to their checks.
func SnapshotFromRun(run *history.Run) Snapshot {
	checks := make([]Check, 0, len(run.Checks))
	index := make(map[string]int, len(run.Checks))
	for i, sc := range run.Checks {
		checks = append(checks, Check{Name: sc.Name, Severity: sc.Severity, Message: sc.Message})
		index[sc.Name] = i
	}

	for name, value := range run.Metrics {
		checkName, key, ok := strings.Cut(name, ".")
		if !ok {
			continue
		}
		i, ok := index[checkName]
		if !ok {
			continue
		}
		if checks[i].Metrics == nil {
			checks[i].Metrics = make(map[string]float64)
		}
		checks[i].Metrics[key] = value
	}

	status, err := health.ParseSeverity(run.WorstSeverity)
	if err != nil {
		status = health.OK
	}
	return Snapshot{
		Database:  run.DatabaseName,
		CheckedAt: run.CheckedAt,
		Status:    status,
		Checks:    checks,
	}
}

func toFloat(v any) (float64, bool) {
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

package health

import "time"

// Finding is the outcome of one health check. Metrics holds the raw
// numbers the message was built from; numeric values are stored as
// float64 so a finding survives a JSON round trip unchanged.
type Finding struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Suggestion  string         `json:"suggestion,omitempty"`
}

// Report is the full result of a health check run against one database.
type Report struct {
	DatabaseName    string       `json:"database_name"`
	DatabaseVersion string       `json:"database_version,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at"`
	Checks          []Finding    `json:"checks"`
	Tables          []TableStat  `json:"tables,omitempty"`
	UnusedIndexes   []IndexStat  `json:"unused_indexes,omitempty"`
	SlowQueries     []SlowQuery  `json:"slow_queries,omitempty"`
	VacuumStats     []VacuumStat `json:"vacuum_stats,omitempty"`
	OverallStatus   Severity     `json:"overall_status"`
}

// Overall reduces check severities to a single status. Informational
// findings never escalate: a report with nothing above info is ok.
func Overall(checks []Finding) Severity {
	worst := OK
	for _, c := range checks {
		if c.Severity > worst {
			worst = c.Severity
		}
	}
	if worst <= Info {
		return OK
	}
	return worst
}

func (r *Report) HasIssues() bool {
	for _, c := range r.Checks {
		if c.Severity >= Warning {
			return true
		}
	}
	return false
}

type Summary struct {
	TotalChecks int `json:"total_checks"`
	OK          int `json:"ok"`
	Info        int `json:"info"`
	Warnings    int `json:"warnings"`
	Criticals   int `json:"criticals"`
}

func (r *Report) Summary() Summary {
	s := Summary{TotalChecks: len(r.Checks)}
	for _, c := range r.Checks {
		switch c.Severity {
		case OK:
			s.OK++
		case Info:
			s.Info++
		case Warning:
			s.Warnings++
		case Critical:
			s.Criticals++
		}
	}
	return s
}

// TableStat describes one table's footprint, largest first in a report.
type TableStat struct {
	Schema    string `json:"schema_name"`
	Name      string `json:"table_name"`
	RowCount  int64  `json:"row_count"`
	TotalSize string `json:"total_size"`
	TableSize string `json:"table_size"`
	IndexSize string `json:"index_size"`
}

// IndexStat describes an index that has never been scanned.
type IndexStat struct {
	Schema    string `json:"schema_name"`
	Table     string `json:"table_name"`
	Name      string `json:"index_name"`
	Size      string `json:"index_size"`
	SizeBytes int64  `json:"index_size_bytes"`
	Scans     int64  `json:"index_scans"`
	IsUnused  bool   `json:"is_unused"`
}

// SlowQuery is a pg_stat_statements entry, slowest mean time first.
type SlowQuery struct {
	Query       string  `json:"query"`
	Calls       int64   `json:"calls"`
	TotalTimeMS float64 `json:"total_time_ms"`
	MeanTimeMS  float64 `json:"mean_time_ms"`
	Rows        int64   `json:"rows"`
}

// VacuumStat describes dead-tuple accumulation on one table.
type VacuumStat struct {
	Schema         string     `json:"schema_name"`
	Table          string     `json:"table_name"`
	DeadTuples     int64      `json:"dead_tuples"`
	LiveTuples     int64      `json:"live_tuples"`
	DeadPct        float64    `json:"dead_pct"`
	TableSize      string     `json:"table_size"`
	LastVacuum     *time.Time `json:"last_vacuum,omitempty"`
	LastAutovacuum *time.Time `json:"last_autovacuum,omitempty"`
}

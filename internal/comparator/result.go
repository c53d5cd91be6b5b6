package comparator

import (
	"time"

	"github.com/jacobarthurs/pg-health/internal/health"
)

type Direction int

const (
	Unchanged Direction = 0
	Improved  Direction = 1
	Regressed Direction = 2

	SignificanceThresholdPct = 5.0
)

func (d Direction) String() string {
	switch d {
	case Improved:
		return "improved"
	case Regressed:
		return "regressed"
	default:
		return "unchanged"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type ChangeType int

const (
	NoChange ChangeType = 0
	Modified ChangeType = 1
	Added    ChangeType = 2
	Removed  ChangeType = 3
)

func (c ChangeType) String() string {
	switch c {
	case Modified:
		return "modified"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "no_change"
	}
}

func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Snapshot is one run reduced to what the diff needs. Both report files
// and saved history runs convert into this shape.
type Snapshot struct {
	Database  string          `json:"database"`
	CheckedAt time.Time       `json:"checked_at"`
	Status    health.Severity `json:"status"`
	Checks    []Check         `json:"checks"`
}

// Check is one finding inside a snapshot. Metrics keeps only numeric
// values; strings and error payloads do not diff.
type Check struct {
	Name     string             `json:"name"`
	Severity health.Severity    `json:"severity"`
	Message  string             `json:"message"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

type CheckDelta struct {
	Name       string     `json:"name"`
	ChangeType ChangeType `json:"change_type"`

	OldSeverity health.Severity `json:"old_severity"`
	NewSeverity health.Severity `json:"new_severity"`
	SeverityDir Direction       `json:"severity_direction"`

	OldMessage string `json:"old_message,omitempty"`
	NewMessage string `json:"new_message,omitempty"`

	Metrics []MetricDelta `json:"metrics,omitempty"`
}

// MetricDelta records one numeric value that moved between runs. It
// carries no direction: whether a larger value is better depends on the
// metric, so only severity decides improvement.
type MetricDelta struct {
	Key   string  `json:"key"`
	Old   float64 `json:"old"`
	New   float64 `json:"new"`
	Delta float64 `json:"delta"`
	Pct   float64 `json:"pct"`
}

type ComparisonResult struct {
	Old     RunMeta      `json:"old"`
	New     RunMeta      `json:"new"`
	Deltas  []CheckDelta `json:"deltas"`
	Summary Summary      `json:"summary"`
}

// RunMeta identifies one side of the comparison.
type RunMeta struct {
	Database  string    `json:"database"`
	CheckedAt time.Time `json:"checked_at"`
}

type Summary struct {
	OldStatus health.Severity `json:"old_status"`
	NewStatus health.Severity `json:"new_status"`
	StatusDir Direction       `json:"status_direction"`

	OldWarnings  int `json:"old_warnings"`
	NewWarnings  int `json:"new_warnings"`
	OldCriticals int `json:"old_criticals"`
	NewCriticals int `json:"new_criticals"`

	ChecksImproved  int `json:"checks_improved"`
	ChecksRegressed int `json:"checks_regressed"`
	ChecksModified  int `json:"checks_modified"`
	ChecksAdded     int `json:"checks_added"`
	ChecksRemoved   int `json:"checks_removed"`

	Verdict string `json:"verdict"`
}

// Package fix plans and applies the closed set of safe maintenance
// actions: dropping unused indexes, vacuuming dead-tuple tables, and
// refreshing statistics. Statements are built only by the package's own
// constructors; there is no general SQL path.
package fix

import (
	"fmt"
	"strings"
)

// Type selects which maintenance action to plan.
type Type string

const (
	TypeUnusedIndexes Type = "unused-indexes"
	TypeVacuum        Type = "vacuum"
	TypeAnalyze       Type = "analyze"
	TypeAll           Type = "all"
)

// ParseType validates a fix type before any database contact.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeUnusedIndexes, TypeVacuum, TypeAnalyze, TypeAll:
		return t, nil
	}
	return "", &ValidationError{
		Field:  "type",
		Reason: fmt.Sprintf("unknown fix type %q (valid: unused-indexes, vacuum, analyze, all)", s),
	}
}

// ValidationError rejects a malformed request before planning.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Request describes the fix to plan. Targets narrow vacuum and analyze
// to specific tables (bare name or schema.table); Limit caps how many
// unused indexes are planned, zero meaning all.
type Request struct {
	Type    Type
	Targets []string
	DryRun  bool
	Limit   int
}

func (r Request) validate() error {
	if len(r.Targets) > 0 && r.Type != TypeVacuum && r.Type != TypeAnalyze {
		return &ValidationError{
			Field:  "tables",
			Reason: fmt.Sprintf("targets only apply to vacuum and analyze, not %q", r.Type),
		}
	}
	for _, t := range r.Targets {
		if t == "" {
			return &ValidationError{Field: "tables", Reason: "empty table name"}
		}
		parts := strings.Split(t, ".")
		if len(parts) > 2 {
			return &ValidationError{
				Field:  "tables",
				Reason: fmt.Sprintf("%q: want table or schema.table", t),
			}
		}
		for _, p := range parts {
			if p == "" {
				return &ValidationError{
					Field:  "tables",
					Reason: fmt.Sprintf("%q: want table or schema.table", t),
				}
			}
		}
	}
	return nil
}

// Plan lifecycle states.
const (
	StatusPlanned  = "planned"
	StatusDryRun   = "dry-run"
	StatusApplying = "applying"
	StatusReported = "reported"
)

// Plan is the ordered list of statements a fix would run. A dry-run
// plan is terminal and never executed.
type Plan struct {
	FixType Type   `json:"fix_type"`
	DryRun  bool   `json:"dry_run"`
	Status  string `json:"status"`
	Items   []Item `json:"items"`
}

// Item is one planned statement. Message starts as the prospective
// "Would ..." form; applying rewrites it to what actually happened.
type Item struct {
	Target    string `json:"target"`
	Statement string `json:"statement"`
	Message   string `json:"message"`
	Executed  bool   `json:"executed"`
	Error     string `json:"error,omitempty"`

	// message forms the executor swaps in after running the statement
	applied string
	failed  string
}

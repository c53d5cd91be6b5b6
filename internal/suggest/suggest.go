// Package suggest turns a health report plus a round of deeper probes
// into prioritized, actionable recommendations.
package suggest

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jacobarthurs/pg-health/internal/pg"
)

// Priority orders recommendations from most to least urgent.
type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

func (p Priority) tier() int {
	switch p {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

// Action is the operator's next step: either a config-level instruction
// that is never executed, or a SQL statement the fix executor may run.
// Built only through ConfigAction and SQLAction.
type Action struct {
	kind string
	text string
}

func ConfigAction(text string) Action { return Action{kind: "config", text: text} }

func SQLAction(statement string) Action { return Action{kind: "sql", text: statement} }

// IsSQL reports whether the action carries an executable statement.
func (a Action) IsSQL() bool { return a.kind == "sql" }

// Text returns the instruction or statement body.
func (a Action) Text() string { return a.text }

func (a Action) MarshalJSON() ([]byte, error) {
	if a.IsSQL() {
		return json.Marshal(struct {
			Kind string `json:"kind"`
			SQL  string `json:"sql"`
		}{a.kind, a.text})
	}
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}{"config", a.text})
}

// Recommendation is one actionable item for the operator. FixType links
// it to the fix subcommand that automates it, when one exists.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Title    string   `json:"title"`
	Why      string   `json:"why"`
	Impact   string   `json:"impact,omitempty"`
	Action   Action   `json:"action"`
	FixType  string   `json:"fix_type,omitempty"`

	// ordering weight within a priority tier: bytes reclaimable,
	// dead tuples, or similar
	magnitude int64
}

// Analysis is the extra probe round the rules draw on beyond what the
// report already carries.
type Analysis struct {
	CacheHitRatio  *float64
	IndexHitRatio  *float64
	SharedBuffers  string
	Connections    *pg.ConnectionStats
	ReplicationLag *int64
	LockWaits      int64
	SeqScans       []pg.SeqScanTable
	LargeTables    []pg.LargeTable
	OutdatedStats  []pg.OutdatedTable
}

// Collect gathers the analysis snapshot. Failed sections are logged and
// left empty so one bad probe never blocks the rest.
func Collect(ctx context.Context, src pg.Client) *Analysis {
	a := &Analysis{}

	var err error
	if a.CacheHitRatio, err = src.CacheHitRatio(ctx); err != nil {
		log.Debug().Err(err).Msg("cache hit ratio unavailable")
	}
	if a.IndexHitRatio, err = src.IndexHitRatio(ctx); err != nil {
		log.Debug().Err(err).Msg("index hit ratio unavailable")
	}
	if a.SharedBuffers, err = src.SharedBuffers(ctx); err != nil {
		log.Debug().Err(err).Msg("shared_buffers setting unavailable")
	}
	if a.Connections, err = src.ConnectionStats(ctx); err != nil {
		log.Debug().Err(err).Msg("connection stats unavailable")
	}
	if a.ReplicationLag, err = src.ReplicationLag(ctx); err != nil {
		log.Debug().Err(err).Msg("replication lag unavailable")
	}
	if a.LockWaits, err = src.LockWaits(ctx); err != nil {
		log.Debug().Err(err).Msg("lock waits unavailable")
	}
	if a.SeqScans, err = src.SeqScanCandidates(ctx); err != nil {
		log.Debug().Err(err).Msg("sequential scan stats unavailable")
	}
	if a.LargeTables, err = src.LargeTables(ctx); err != nil {
		log.Debug().Err(err).Msg("large table stats unavailable")
	}
	if a.OutdatedStats, err = src.OutdatedStats(ctx); err != nil {
		log.Debug().Err(err).Msg("analyze staleness unavailable")
	}
	return a
}

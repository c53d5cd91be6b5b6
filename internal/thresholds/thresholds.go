// Package thresholds holds the warning/critical levels that grade raw
// database metrics, plus the override plumbing that lets a config file
// replace individual levels.
package thresholds

import (
	"fmt"
	"math"
	"sort"

	"github.com/jacobarthurs/pg-health/internal/health"
)

// Metric keys accepted in threshold overrides.
const (
	CacheHitRatio    = "cache_hit_ratio"
	IndexHitRatio    = "index_hit_ratio"
	ConnectionUsage  = "connection_usage"
	ReplicationLag   = "replication_lag_seconds"
	DeadTuples       = "dead_tuples"
	TableBloatRatio  = "table_bloat_ratio"
	LockWaits        = "lock_waits"
	DuplicateIndexes = "duplicate_index_pairs"
	FKMissingIndexes = "fk_missing_indexes"
	TransactionIDAge = "transaction_id_age"
)

// Direction states which side of the scale is unhealthy for a metric.
// It is intrinsic to the metric and cannot be overridden.
type Direction int

const (
	HigherIsBad Direction = iota
	LowerIsBad
)

// Spec is one metric's grading ladder. When Warning == Critical the
// critical tier is unreachable and any breach grades as warning.
type Spec struct {
	Direction Direction
	Warning   float64
	Critical  float64
}

// Classify grades a raw value. Boundary values sit on the healthy side:
// a value equal to a level never crosses it.
func (s Spec) Classify(value float64) health.Severity {
	switch s.Direction {
	case LowerIsBad:
		if s.Critical < s.Warning && value < s.Critical {
			return health.Critical
		}
		if value < s.Warning {
			return health.Warning
		}
	default:
		if s.Critical > s.Warning && value > s.Critical {
			return health.Critical
		}
		if value > s.Warning {
			return health.Warning
		}
	}
	return health.OK
}

func (s Spec) validate(key string) error {
	switch s.Direction {
	case LowerIsBad:
		if s.Warning < s.Critical {
			return &ConfigError{Key: key, Reason: fmt.Sprintf("warning %v is below critical %v for a lower-is-worse metric", s.Warning, s.Critical)}
		}
	default:
		if s.Warning > s.Critical {
			return &ConfigError{Key: key, Reason: fmt.Sprintf("warning %v exceeds critical %v for a higher-is-worse metric", s.Warning, s.Critical)}
		}
	}
	return nil
}

// Levels is an override for one metric: both levels must be given, the
// direction always comes from the built-in table.
type Levels struct {
	Warning  float64
	Critical float64
}

// ConfigError reports a rejected threshold override.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "invalid threshold config: " + e.Reason
	}
	return fmt.Sprintf("invalid threshold config for %q: %s", e.Key, e.Reason)
}

var defaults = map[string]Spec{
	CacheHitRatio:    {Direction: LowerIsBad, Warning: 0.95, Critical: 0.90},
	IndexHitRatio:    {Direction: LowerIsBad, Warning: 0.95, Critical: 0.90},
	ConnectionUsage:  {Direction: HigherIsBad, Warning: 0.70, Critical: 0.90},
	ReplicationLag:   {Direction: HigherIsBad, Warning: 10, Critical: 60},
	DeadTuples:       {Direction: HigherIsBad, Warning: 100000, Critical: 1000000},
	TableBloatRatio:  {Direction: HigherIsBad, Warning: 0.10, Critical: 0.20},
	LockWaits:        {Direction: HigherIsBad, Warning: 5, Critical: 20},
	DuplicateIndexes: {Direction: HigherIsBad, Warning: 0, Critical: 0},
	FKMissingIndexes: {Direction: HigherIsBad, Warning: 3, Critical: 3},
	TransactionIDAge: {Direction: HigherIsBad, Warning: 500000000, Critical: 1000000000},
}

// Config is a resolved threshold table covering every known metric.
type Config struct {
	specs map[string]Spec
}

// Defaults returns the built-in table with no overrides applied.
func Defaults() *Config {
	cfg, err := Resolve(nil)
	if err != nil {
		panic(err) // built-in table must be valid
	}
	return cfg
}

// Resolve merges overrides onto the built-in table. An override fully
// replaces both levels for its metric. Unknown keys, NaN levels, and
// levels ordered against the metric's direction are rejected.
func Resolve(overrides map[string]Levels) (*Config, error) {
	specs := make(map[string]Spec, len(defaults))
	for key, spec := range defaults {
		specs[key] = spec
	}
	for key, lv := range overrides {
		base, ok := specs[key]
		if !ok {
			return nil, &ConfigError{Key: key, Reason: "unknown threshold key"}
		}
		if math.IsNaN(lv.Warning) || math.IsNaN(lv.Critical) {
			return nil, &ConfigError{Key: key, Reason: "threshold level is NaN"}
		}
		spec := Spec{Direction: base.Direction, Warning: lv.Warning, Critical: lv.Critical}
		if err := spec.validate(key); err != nil {
			return nil, err
		}
		specs[key] = spec
	}
	return &Config{specs: specs}, nil
}

// Spec returns the ladder for a metric key.
func (c *Config) Spec(key string) (Spec, bool) {
	s, ok := c.specs[key]
	return s, ok
}

// Classify grades a value against the named metric's ladder. Unknown
// keys grade as ok.
func (c *Config) Classify(key string, value float64) health.Severity {
	s, ok := c.specs[key]
	if !ok {
		return health.OK
	}
	return s.Classify(value)
}

// Keys lists every known metric key in sorted order.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.specs))
	for k := range c.specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package comparator

import (
	"math"
	"sort"

	"github.com/jacobarthurs/pg-health/internal/health"
)

// diffChecks matches checks by name. Order follows the old run, with
// checks new to the second run appended in their own order.
func (c *Comparator) diffChecks(old, new Snapshot) []CheckDelta {
	newByName := make(map[string]Check, len(new.Checks))
	for _, ck := range new.Checks {
		newByName[ck.Name] = ck
	}
	oldNames := make(map[string]bool, len(old.Checks))

	var deltas []CheckDelta
	for _, oldCk := range old.Checks {
		oldNames[oldCk.Name] = true
		newCk, ok := newByName[oldCk.Name]
		if !ok {
			deltas = append(deltas, removedCheck(oldCk))
			continue
		}
		deltas = append(deltas, c.diffCheck(oldCk, newCk))
	}

	for _, newCk := range new.Checks {
		if !oldNames[newCk.Name] {
			deltas = append(deltas, addedCheck(newCk))
		}
	}

	return deltas
}

func (c *Comparator) diffCheck(old, new Check) CheckDelta {
	delta := CheckDelta{
		Name:        old.Name,
		ChangeType:  Modified,
		OldSeverity: old.Severity,
		NewSeverity: new.Severity,
		SeverityDir: severityDirection(old.Severity, new.Severity),
		OldMessage:  old.Message,
		NewMessage:  new.Message,
		Metrics:     c.diffMetrics(old.Metrics, new.Metrics),
	}

	if !c.isSignificant(delta) {
		delta.ChangeType = NoChange
	}

	return delta
}

func addedCheck(ck Check) CheckDelta {
	return CheckDelta{
		Name:        ck.Name,
		ChangeType:  Added,
		OldSeverity: health.OK,
		NewSeverity: ck.Severity,
		NewMessage:  ck.Message,
	}
}

func removedCheck(ck Check) CheckDelta {
	return CheckDelta{
		Name:        ck.Name,
		ChangeType:  Removed,
		OldSeverity: ck.Severity,
		NewSeverity: health.OK,
		OldMessage:  ck.Message,
	}
}

// diffMetrics keeps values that moved and are present in both runs. A
// key on one side only usually means the check errored there, and a
// zero-vs-missing delta would be noise.
func (c *Comparator) diffMetrics(old, new map[string]float64) []MetricDelta {
	keys := make([]string, 0, len(old))
	for key := range old {
		if _, ok := new[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var deltas []MetricDelta
	for _, key := range keys {
		o, n := old[key], new[key]
		if o == n {
			continue
		}
		deltas = append(deltas, MetricDelta{
			Key:   key,
			Old:   o,
			New:   n,
			Delta: n - o,
			Pct:   pctChange(o, n),
		})
	}
	return deltas
}

func (c *Comparator) isSignificant(d CheckDelta) bool {
	if d.OldSeverity != d.NewSeverity {
		return true
	}
	for _, m := range d.Metrics {
		if math.Abs(m.Pct) > c.Threshold {
			return true
		}
	}
	return false
}

// severityDirection treats lower severity as better.
func severityDirection(old, new health.Severity) Direction {
	switch {
	case new < old:
		return Improved
	case new > old:
		return Regressed
	}
	return Unchanged
}

func pctChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return ((new - old) / old) * 100
}

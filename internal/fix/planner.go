package fix

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

// Planner turns current database state into a fix plan. Planning is
// deterministic: the same state yields the same plan, so a dry run
// shows exactly what apply would do.
type Planner struct {
	Source pg.Client
	Config *thresholds.Config
}

func NewPlanner(src pg.Client, cfg *thresholds.Config) *Planner {
	if cfg == nil {
		cfg = thresholds.Defaults()
	}
	return &Planner{Source: src, Config: cfg}
}

func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	if _, err := ParseType(string(req.Type)); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var items []Item
	var err error
	switch req.Type {
	case TypeUnusedIndexes:
		items, err = p.unusedIndexItems(ctx, req.Limit)
	case TypeVacuum:
		items, err = p.vacuumItems(ctx, req.Targets)
	case TypeAnalyze:
		items, err = p.analyzeItems(ctx, req.Targets)
	case TypeAll:
		items, err = p.allItems(ctx, req.Limit)
	}
	if err != nil {
		return nil, err
	}

	plan := &Plan{FixType: req.Type, DryRun: req.DryRun, Status: StatusPlanned, Items: items}
	if req.DryRun {
		plan.Status = StatusDryRun
	}
	return plan, nil
}

func (p *Planner) unusedIndexItems(ctx context.Context, limit int) ([]Item, error) {
	indexes, err := p.Source.UnusedIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("planning index drops: %w", err)
	}
	if limit > 0 && len(indexes) > limit {
		indexes = indexes[:limit]
	}

	items := make([]Item, 0, len(indexes))
	for _, idx := range indexes {
		items = append(items, dropIndexItem(idx))
	}
	return items, nil
}

func (p *Planner) vacuumItems(ctx context.Context, targets []string) ([]Item, error) {
	rows, err := p.Source.VacuumStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("planning vacuum: %w", err)
	}
	spec, _ := p.Config.Spec(thresholds.DeadTuples)

	var items []Item
	for _, vt := range rows {
		if len(targets) == 0 {
			// without an explicit list, only tables already past the
			// warning level are worth a vacuum
			if spec.Classify(float64(vt.DeadTuples)) < health.Warning {
				continue
			}
		} else if !matchesTarget(targets, vt.Schema, vt.Table) {
			continue
		}
		items = append(items, vacuumItem(vt))
	}
	return items, nil
}

func (p *Planner) analyzeItems(ctx context.Context, targets []string) ([]Item, error) {
	rows, err := p.Source.OutdatedStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("planning analyze: %w", err)
	}

	var items []Item
	for _, ot := range rows {
		if !matchesTarget(targets, ot.Schema, ot.Table) {
			continue
		}
		items = append(items, analyzeItem(ot))
	}
	return items, nil
}

func (p *Planner) allItems(ctx context.Context, limit int) ([]Item, error) {
	var items []Item
	for _, part := range []func() ([]Item, error){
		func() ([]Item, error) { return p.unusedIndexItems(ctx, limit) },
		func() ([]Item, error) { return p.vacuumItems(ctx, nil) },
		func() ([]Item, error) { return p.analyzeItems(ctx, nil) },
	} {
		batch, err := part()
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

func matchesTarget(targets []string, schema, table string) bool {
	if len(targets) == 0 {
		return true
	}
	full := schema + "." + table
	for _, t := range targets {
		if t == table || t == full {
			return true
		}
	}
	return false
}

// --- Item constructors ---

var grouped = message.NewPrinter(language.English)

func dropIndexItem(idx health.IndexStat) Item {
	target := idx.Schema + "." + idx.Name
	return Item{
		Target:    target,
		Statement: dropIndexStatement(idx.Schema, idx.Name),
		Message:   fmt.Sprintf("Would drop index %s (%s)", target, idx.Size),
		applied:   fmt.Sprintf("Dropped index %s (%s)", target, idx.Size),
		failed:    fmt.Sprintf("Failed to drop %s", target),
	}
}

func vacuumItem(vt health.VacuumStat) Item {
	target := vt.Schema + "." + vt.Table
	return Item{
		Target:    target,
		Statement: vacuumStatement(vt.Schema, vt.Table),
		Message: fmt.Sprintf("Would vacuum %s (%s dead tuples, %.1f%% bloat)",
			target, grouped.Sprintf("%d", vt.DeadTuples), vt.DeadPct),
		applied: fmt.Sprintf("Vacuumed %s", target),
		failed:  fmt.Sprintf("Failed to vacuum %s", target),
	}
}

func analyzeItem(ot pg.OutdatedTable) Item {
	target := ot.Schema + "." + ot.Table
	return Item{
		Target:    target,
		Statement: analyzeStatement(ot.Schema, ot.Table),
		Message: fmt.Sprintf("Would analyze %s (%s modifications since last analyze)",
			target, grouped.Sprintf("%d", ot.ModsSinceAnalyze)),
		applied: fmt.Sprintf("Analyzed %s", target),
		failed:  fmt.Sprintf("Failed to analyze %s", target),
	}
}

// --- Statement constructors ---
//
// The only three statements this package can emit. Identifiers are
// always quoted through pgx.

func dropIndexStatement(schema, index string) string {
	return fmt.Sprintf("DROP INDEX %s;", pgx.Identifier{schema, index}.Sanitize())
}

func vacuumStatement(schema, table string) string {
	return fmt.Sprintf("VACUUM ANALYZE %s;", pgx.Identifier{schema, table}.Sanitize())
}

func analyzeStatement(schema, table string) string {
	return fmt.Sprintf("ANALYZE %s;", pgx.Identifier{schema, table}.Sanitize())
}

package checks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

const (
	defaultConcurrency  = 4
	defaultCheckTimeout = 10 * time.Second
)

// Evaluator runs every registered check against one database and folds
// the outcomes into a report. Checks run concurrently up to Concurrency,
// each under its own timeout; a slow or failing check degrades to a
// warning finding instead of sinking the run.
type Evaluator struct {
	Source       pg.Client
	Config       *thresholds.Config
	Checks       []Check
	Concurrency  int
	CheckTimeout time.Duration
}

func NewEvaluator(src pg.Client, cfg *thresholds.Config) *Evaluator {
	return &Evaluator{
		Source:       src,
		Config:       cfg,
		Checks:       Registry(),
		Concurrency:  defaultConcurrency,
		CheckTimeout: defaultCheckTimeout,
	}
}

// Run evaluates all checks and returns the assembled report. It returns
// an error only for run-level failures: an unreachable database, an
// empty registry, or caller cancellation. Per-check failures surface as
// findings, never as errors.
func (e *Evaluator) Run(ctx context.Context) (*health.Report, error) {
	if len(e.Checks) == 0 {
		return nil, errors.New("no checks registered")
	}

	info, err := e.Source.DatabaseInfo(ctx)
	if err != nil {
		return nil, err
	}

	// one slot per check plus one for the table-size ride-along,
	// so registration order survives concurrent completion
	outcomes := make([]Outcome, len(e.Checks)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	for i, check := range e.Checks {
		i, check := i, check // per-iteration copies; module targets go 1.21 loop semantics
		g.Go(func() error {
			started := time.Now()
			cctx, cancel := context.WithTimeout(gctx, e.checkTimeout())
			out, err := check.Run(cctx, e.Source, e.Config)
			cancel()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn().Str("check", check.Name).Err(err).Msg("check failed")
				out = errorOutcome(err)
			}
			stamp(check, &out)
			outcomes[i] = out
			log.Debug().Str("check", check.Name).Dur("elapsed", time.Since(started)).Msg("check complete")
			return nil
		})
	}

	g.Go(func() error {
		tctx, cancel := context.WithTimeout(gctx, e.checkTimeout())
		defer cancel()
		tables, err := e.Source.TableSizes(tctx)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			log.Debug().Err(err).Msg("table sizes unavailable")
			return nil
		}
		outcomes[len(e.Checks)] = Outcome{Tables: tables}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &health.Report{
		DatabaseName:    info.Name,
		DatabaseVersion: info.Version,
		GeneratedAt:     time.Now().UTC(),
	}
	for _, out := range outcomes {
		report.Checks = append(report.Checks, out.Findings...)
		report.Tables = append(report.Tables, out.Tables...)
		report.UnusedIndexes = append(report.UnusedIndexes, out.UnusedIndexes...)
		report.SlowQueries = append(report.SlowQueries, out.SlowQueries...)
		report.VacuumStats = append(report.VacuumStats, out.VacuumStats...)
	}
	report.OverallStatus = health.Overall(report.Checks)
	return report, nil
}

func (e *Evaluator) concurrency() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return defaultConcurrency
}

func (e *Evaluator) checkTimeout() time.Duration {
	if e.CheckTimeout > 0 {
		return e.CheckTimeout
	}
	return defaultCheckTimeout
}

// errorOutcome downgrades a probe failure to a warning finding carrying
// the error marker, so the rest of the report survives.
func errorOutcome(err error) Outcome {
	return Outcome{Findings: []health.Finding{{
		Severity: health.Warning,
		Message:  "Check failed: " + err.Error(),
		Metrics:  map[string]any{"error": err.Error()},
	}}}
}

// stamp fills in the registry name and description on findings the
// check left unnamed.
func stamp(check Check, out *Outcome) {
	for i := range out.Findings {
		if out.Findings[i].Name == "" {
			out.Findings[i].Name = check.Name
		}
		if out.Findings[i].Description == "" {
			out.Findings[i].Description = check.Description
		}
	}
}

package fix

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jacobarthurs/pg-health/internal/pg"
)

// Executor runs a plan's statements strictly in order. A failed item
// records its error and execution continues; cancellation stops before
// the next item and leaves the remainder unexecuted.
type Executor struct {
	exec pg.Execer
}

func NewExecutor(exec pg.Execer) *Executor {
	return &Executor{exec: exec}
}

func (e *Executor) Apply(ctx context.Context, plan *Plan) error {
	if plan.DryRun {
		return &ValidationError{Field: "plan", Reason: "dry-run plans are never executed"}
	}

	plan.Status = StatusApplying
	defer func() { plan.Status = StatusReported }()

	for i := range plan.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := &plan.Items[i]
		it.Executed = true
		if err := e.exec.Exec(ctx, it.Statement); err != nil {
			it.Error = err.Error()
			it.Message = it.failed + ": " + err.Error()
			log.Warn().Str("target", it.Target).Err(err).Msg("fix statement failed")
			continue
		}
		it.Message = it.applied
		log.Debug().Str("target", it.Target).Str("statement", it.Statement).Msg("fix applied")
	}
	return nil
}

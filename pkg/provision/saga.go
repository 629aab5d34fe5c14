package provision

import (
	"context"

	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/observability"
)

// Step is one forward action in a saga with its optional rollback
type Step struct {
	// Name identifies the step in logs and the audit trail
	Name string

	// Stage is the backend the step writes to
	Stage Stage

	// Forward performs the step's write
	Forward func(ctx context.Context) error

	// Compensate undoes a previously successful Forward. Nil for steps
	// that need no rollback.
	Compensate func(ctx context.Context) error
}

// Outcome is the aggregate result of running a saga
type Outcome struct {
	// Failed is nil when every step succeeded; otherwise it carries the
	// stage and cause of the first failing step
	Failed *StageFailure

	// CompensationFailures lists rollbacks that themselves failed. These
	// never replace Failed; they mark operator-visible inconsistencies.
	CompensationFailures []CompensationFailure
}

// Saga executes ordered steps with reverse-order compensation
type Saga struct {
	op      string
	email   string
	logger  *observability.Logger
	auditor audit.Logger
	metrics *observability.Metrics
}

// NewSaga creates a saga runner for one logical operation. The op and email
// label log lines and audit events.
func NewSaga(op, email string, logger *observability.Logger, auditor audit.Logger, metrics *observability.Metrics) *Saga {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Saga{op: op, email: email, logger: logger, auditor: auditor, metrics: metrics}
}

// Run executes the steps in order. On the first forward failure it
// compensates the already-completed steps in reverse and returns the
// triggering failure in the outcome.
//
// The caller's context applies to the first step only; once the first write
// has committed the remaining steps and any compensation run detached from
// the caller's cancellation, so an abandoned request cannot leave a
// half-applied operation behind.
func (s *Saga) Run(ctx context.Context, steps []Step) Outcome {
	var completed []Step

	stepCtx := ctx
	for _, step := range steps {
		if err := step.Forward(stepCtx); err != nil {
			failure := &StageFailure{Stage: step.Stage, Op: s.op, Err: err}
			if s.logger != nil {
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"operation": s.op,
					"step":      step.Name,
					"stage":     string(step.Stage),
				}).Warn("saga step failed, compensating")
			}
			return Outcome{
				Failed:               failure,
				CompensationFailures: s.compensate(ctx, completed),
			}
		}
		completed = append(completed, step)
		// First write committed: detach from caller cancellation
		stepCtx = context.WithoutCancel(ctx)
	}
	return Outcome{}
}

// compensate rolls back completed steps in reverse order. Failures are
// collected, logged, audited, and counted, but compensation always continues
// through the remaining steps.
func (s *Saga) compensate(ctx context.Context, completed []Step) []CompensationFailure {
	// Compensation must run even if the caller gave up
	ctx = context.WithoutCancel(ctx)

	var failures []CompensationFailure
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}

		err := step.Compensate(ctx)
		status := audit.EventStatusSuccess
		if err != nil {
			status = audit.EventStatusFailure
			failures = append(failures, CompensationFailure{Step: step.Name, Err: err})
			if s.logger != nil {
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"operation": s.op,
					"step":      step.Name,
					"stage":     string(step.Stage),
				}).Error("compensation failed, backends are inconsistent")
			}
			if s.metrics != nil {
				s.metrics.CompensationFailuresTotal.Inc()
			}
		}
		if s.metrics != nil {
			s.metrics.CompensationsTotal.WithLabelValues(step.Name, string(status)).Inc()
		}

		event := &audit.Event{
			EventType: audit.EventTypeCompensation,
			Status:    status,
			Stage:     string(step.Stage),
			Email:     s.email,
			RequestID: observability.GetRequestID(ctx),
			Message:   "rolled back step " + step.Name,
		}
		if err != nil {
			event.Message = "rollback of step " + step.Name + " failed; backends are inconsistent"
			event.ErrorMessage = err.Error()
		}
		if auditErr := s.auditor.Log(ctx, event); auditErr != nil && s.logger != nil {
			s.logger.WithError(auditErr).Warn("failed to audit compensation")
		}
	}
	return failures
}

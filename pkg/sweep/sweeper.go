package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/identitystore"
	"github.com/platinummonkey/permsync/pkg/observability"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// sweepTimeout bounds one full reconciliation pass
const sweepTimeout = 5 * time.Minute

// ReportStore is the subset of the report store client the sweeper uses
type ReportStore interface {
	ListUsers(ctx context.Context) ([]reportstore.User, error)
}

// IdentityStore is the subset of the identity store client the sweeper uses
type IdentityStore interface {
	GetUserByEmail(ctx context.Context, email string) (*identitystore.User, error)
}

// Report summarizes one sweep pass
type Report struct {
	Checked int
	Orphans []string
	Errors  int
}

// Sweeper runs scheduled orphan detection between the backends
type Sweeper struct {
	reports    ReportStore
	identities IdentityStore
	logger     *observability.Logger
	auditor    audit.Logger
	metrics    *observability.Metrics
	cron       *cron.Cron
}

// NewSweeper creates an orphan sweeper
func NewSweeper(reports ReportStore, identities IdentityStore, logger *observability.Logger, auditor audit.Logger, metrics *observability.Metrics) *Sweeper {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Sweeper{
		reports:    reports,
		identities: identities,
		logger:     logger,
		auditor:    auditor,
		metrics:    metrics,
	}
}

// Start schedules sweeps on the given cron expression
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		report, err := s.Run(ctx)
		if err != nil {
			if s.logger != nil {
				s.logger.WithError(err).Error("orphan sweep failed")
			}
			return
		}
		if s.logger != nil {
			s.logger.WithFields(map[string]interface{}{
				"checked": report.Checked,
				"orphans": len(report.Orphans),
				"errors":  report.Errors,
			}).Info("orphan sweep completed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	c.Start()
	s.cron = c
	if s.logger != nil {
		s.logger.WithField("schedule", schedule).Info("orphan sweeper started")
	}
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run performs one reconciliation pass. Items are checked sequentially; the
// sweep is a background janitor and must not burst traffic at the backends.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	users, err := s.reports.ListUsers(ctx)
	if err != nil {
		s.observeRun("failure")
		return nil, fmt.Errorf("failed to list report store users: %w", err)
	}

	report := &Report{Checked: len(users)}
	for _, user := range users {
		if ctx.Err() != nil {
			s.observeRun("failure")
			return report, ctx.Err()
		}

		_, err := s.identities.GetUserByEmail(ctx, user.Email)
		if err == nil {
			continue
		}

		var notFound *identitystore.NotFoundError
		if errors.As(err, &notFound) {
			report.Orphans = append(report.Orphans, user.Email)
			s.recordOrphan(ctx, user)
			continue
		}

		report.Errors++
		if s.logger != nil {
			s.logger.WithError(err).WithField("email", user.Email).
				Warn("identity store lookup failed during sweep")
		}
	}

	s.observeRun("success")
	return report, nil
}

func (s *Sweeper) recordOrphan(ctx context.Context, user reportstore.User) {
	if s.metrics != nil {
		s.metrics.OrphansDetectedTotal.WithLabelValues("report_store").Inc()
	}
	event := &audit.Event{
		EventType: audit.EventTypeOrphanDetected,
		Status:    audit.EventStatusFailure,
		Stage:     "report_store",
		Email:     user.Email,
		Message:   "report store user has no identity store account",
		Metadata:  map[string]interface{}{"report_store_id": user.ID},
	}
	if err := s.auditor.Log(ctx, event); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("failed to audit orphan")
	}
}

func (s *Sweeper) observeRun(status string) {
	if s.metrics != nil {
		s.metrics.SweepRunsTotal.WithLabelValues(status).Inc()
	}
}

package provision

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/identitystore"
	"github.com/platinummonkey/permsync/pkg/observability"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// temporaryPasswordBytes is the entropy of a generated first-login password
const temporaryPasswordBytes = 24

// ReportStore is the subset of the report store client the coordinator uses
type ReportStore interface {
	GetUserByEmail(ctx context.Context, email string) (*reportstore.User, error)
	CreateUser(ctx context.Context, user reportstore.User) (*reportstore.User, error)
	UpdateUser(ctx context.Context, user reportstore.User) error
	DeleteUser(ctx context.Context, userID int64) error
	DeleteUserByEmail(ctx context.Context, email string) error
}

// IdentityStore is the subset of the identity store client the coordinator
// uses
type IdentityStore interface {
	CreateUser(ctx context.Context, email, displayName, temporaryPassword string) (*identitystore.User, error)
	GetUserByEmail(ctx context.Context, email string) (*identitystore.User, error)
	DeleteUser(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID, displayName string) error
	SetNeedsPasswordReset(ctx context.Context, userID string, needsReset bool) error
}

// CreateRequest describes a user to provision in both backends
type CreateRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Active    bool   `json:"active"`
}

// UpdateRequest describes an update to an already-provisioned user
type UpdateRequest struct {
	ReportStoreID int64  `json:"userId"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Active        bool   `json:"active"`
}

// Result is the structured outcome of a provisioning operation. Failures
// carry the stage so callers know which backend is inconsistent.
type Result struct {
	Success bool   `json:"success"`
	Stage   Stage  `json:"stage,omitempty"`
	Message string `json:"message"`

	ReportStoreID   int64  `json:"reportStoreId,omitempty"`
	IdentityStoreID string `json:"identityStoreId,omitempty"`

	// TemporaryPassword is set on create so the caller can hand it to the
	// user out of band when the reset flag could not be applied
	TemporaryPassword string `json:"temporaryPassword,omitempty"`

	// PasswordResetPending is true when the needs_password_reset flag was
	// applied and the user will be forced to change the password on login
	PasswordResetPending bool `json:"passwordResetPending"`

	// CompensationFailed marks an operator-visible inconsistency: a
	// rollback step failed after the triggering error
	CompensationFailed bool `json:"compensationFailed,omitempty"`

	// IdentityAccountMissing marks a delete that found no identity store
	// account for the email; the deletion still succeeded
	IdentityAccountMissing bool `json:"identityAccountMissing,omitempty"`
}

// Coordinator runs provisioning operations across both backends
type Coordinator struct {
	reports    ReportStore
	identities IdentityStore
	logger     *observability.Logger
	auditor    audit.Logger
	metrics    *observability.Metrics
}

// NewCoordinator creates a provisioning coordinator
func NewCoordinator(reports ReportStore, identities IdentityStore, logger *observability.Logger, auditor audit.Logger, metrics *observability.Metrics) *Coordinator {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Coordinator{
		reports:    reports,
		identities: identities,
		logger:     logger,
		auditor:    auditor,
		metrics:    metrics,
	}
}

// CreateUser provisions a user in the report store and then the identity
// store. An identity store failure compensates by deleting the just-created
// report store user, keyed by the same email. Setting the password-reset
// flag is best effort and never rolls anything back.
func (c *Coordinator) CreateUser(ctx context.Context, req CreateRequest) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	tempPassword, err := generateTemporaryPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary password: %w", err)
	}

	displayName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	result := &Result{TemporaryPassword: tempPassword}

	steps := []Step{
		{
			Name:  "report_store_create",
			Stage: StageReportStore,
			Forward: func(ctx context.Context) error {
				created, err := c.reports.CreateUser(ctx, reportstore.User{
					Email:     email,
					FirstName: req.FirstName,
					LastName:  req.LastName,
					Active:    req.Active,
				})
				if err != nil {
					return err
				}
				result.ReportStoreID = created.ID
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return c.reports.DeleteUserByEmail(ctx, email)
			},
		},
		{
			Name:  "identity_store_create",
			Stage: StageIdentityStore,
			Forward: func(ctx context.Context) error {
				created, err := c.identities.CreateUser(ctx, email, displayName, tempPassword)
				if err != nil {
					return err
				}
				result.IdentityStoreID = created.ID
				return nil
			},
		},
	}

	saga := NewSaga("create_user", email, c.logger, c.auditor, c.metrics)
	outcome := saga.Run(ctx, steps)
	if outcome.Failed != nil {
		result.Success = false
		result.Stage = outcome.Failed.Stage
		result.TemporaryPassword = ""
		result.CompensationFailed = len(outcome.CompensationFailures) > 0
		result.Message = fmt.Sprintf("user creation failed in the %s", backendLabel(outcome.Failed.Stage))
		c.record(ctx, audit.EventTypeProvisionCreate, audit.EventStatusFailure, outcome.Failed.Stage, email, outcome.Failed.Err)
		return result, outcome.Failed
	}

	// Best effort: force a password change on first login. Failure degrades
	// to handing over the temporary password out of band.
	resetCtx := context.WithoutCancel(ctx)
	if err := c.identities.SetNeedsPasswordReset(resetCtx, result.IdentityStoreID, true); err != nil {
		if c.logger != nil {
			c.logger.WithError(err).WithField("email", email).
				Warn("failed to set password reset flag; temporary password must be delivered out of band")
		}
	} else {
		result.PasswordResetPending = true
	}

	result.Success = true
	result.Message = "user created in both backends"
	c.record(ctx, audit.EventTypeProvisionCreate, audit.EventStatusSuccess, "", email, nil)
	return result, nil
}

// UpdateUser updates the report store record first; a failure there stops
// the operation. The identity store display name is a denormalized cache and
// its update is best effort.
func (c *Coordinator) UpdateUser(ctx context.Context, req UpdateRequest) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.ReportStoreID == 0 {
		return nil, errors.New("email and userId are required")
	}

	result := &Result{ReportStoreID: req.ReportStoreID}

	err := c.reports.UpdateUser(ctx, reportstore.User{
		ID:        req.ReportStoreID,
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Active:    req.Active,
	})
	if err != nil {
		failure := &StageFailure{Stage: StageReportStore, Op: "update_user", Err: err}
		result.Stage = StageReportStore
		result.Message = fmt.Sprintf("user update failed in the %s", backendLabel(StageReportStore))
		c.record(ctx, audit.EventTypeProvisionUpdate, audit.EventStatusFailure, StageReportStore, email, err)
		return result, failure
	}

	// Report store committed; finish regardless of caller cancellation
	ctx = context.WithoutCancel(ctx)

	displayName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	if identity, lookupErr := c.identities.GetUserByEmail(ctx, email); lookupErr != nil {
		if c.logger != nil {
			c.logger.WithError(lookupErr).WithField("email", email).
				Warn("identity store lookup failed during update; display name not synced")
		}
	} else if profileErr := c.identities.UpdateProfile(ctx, identity.ID, displayName); profileErr != nil {
		if c.logger != nil {
			c.logger.WithError(profileErr).WithField("email", email).
				Warn("identity store profile update failed; display name not synced")
		}
	} else {
		result.IdentityStoreID = identity.ID
	}

	result.Success = true
	result.Message = "user updated"
	c.record(ctx, audit.EventTypeProvisionUpdate, audit.EventStatusSuccess, "", email, nil)
	return result, nil
}

// DeleteUser removes the user from the report store first; a failure there
// stops the operation without touching the login identity. On success the
// identity store account is deleted best effort; a missing account is still
// a success, recorded distinctly in the result and the audit trail.
func (c *Coordinator) DeleteUser(ctx context.Context, email string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	result := &Result{}

	user, err := c.reports.GetUserByEmail(ctx, email)
	if err != nil {
		failure := &StageFailure{Stage: StageReportStore, Op: "delete_user", Err: err}
		result.Stage = StageReportStore
		result.Message = fmt.Sprintf("user deletion failed in the %s", backendLabel(StageReportStore))
		c.record(ctx, audit.EventTypeProvisionDelete, audit.EventStatusFailure, StageReportStore, email, err)
		return result, failure
	}
	result.ReportStoreID = user.ID

	if err := c.reports.DeleteUser(ctx, user.ID); err != nil {
		failure := &StageFailure{Stage: StageReportStore, Op: "delete_user", Err: err}
		result.Stage = StageReportStore
		result.Message = fmt.Sprintf("user deletion failed in the %s", backendLabel(StageReportStore))
		c.record(ctx, audit.EventTypeProvisionDelete, audit.EventStatusFailure, StageReportStore, email, err)
		return result, failure
	}

	// Authoritative deletion committed; finish regardless of caller
	// cancellation
	ctx = context.WithoutCancel(ctx)

	identity, lookupErr := c.identities.GetUserByEmail(ctx, email)
	switch {
	case lookupErr != nil:
		var notFound *identitystore.NotFoundError
		if errors.As(lookupErr, &notFound) {
			result.IdentityAccountMissing = true
			result.Message = "user deleted; no identity store account existed for this email"
			c.recordOrphanedDelete(ctx, email)
		} else {
			result.Message = "user deleted from report store; identity store lookup failed"
			if c.logger != nil {
				c.logger.WithError(lookupErr).WithField("email", email).
					Warn("identity store lookup failed during delete; login account may remain")
			}
		}
	default:
		result.IdentityStoreID = identity.ID
		if deleteErr := c.identities.DeleteUser(ctx, identity.ID); deleteErr != nil {
			result.Message = "user deleted from report store; identity store deletion failed"
			if c.logger != nil {
				c.logger.WithError(deleteErr).WithField("email", email).
					Warn("identity store deletion failed; login account remains")
			}
		} else {
			result.Message = "user deleted from both backends"
		}
	}

	result.Success = true
	if result.Message == "" {
		result.Message = "user deleted"
	}
	c.record(ctx, audit.EventTypeProvisionDelete, audit.EventStatusSuccess, "", email, nil)
	return result, nil
}

// record writes a provisioning audit event and bumps the operation metric
func (c *Coordinator) record(ctx context.Context, eventType audit.EventType, status audit.EventStatus, stage Stage, email string, cause error) {
	if c.metrics != nil {
		operation := strings.TrimPrefix(string(eventType), "provision.")
		c.metrics.ProvisioningTotal.WithLabelValues(operation, string(stage), string(status)).Inc()
	}

	event := &audit.Event{
		EventType: eventType,
		Status:    status,
		Stage:     string(stage),
		Email:     email,
		RequestID: observability.GetRequestID(ctx),
	}
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}
	if err := c.auditor.Log(ctx, event); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("failed to audit provisioning operation")
	}
}

// recordOrphanedDelete notes a delete that found the user only in the report
// store, which may indicate an earlier partial failure
func (c *Coordinator) recordOrphanedDelete(ctx context.Context, email string) {
	event := &audit.Event{
		EventType: audit.EventTypeOrphanDetected,
		Status:    audit.EventStatusSuccess,
		Stage:     string(StageReportStore),
		Email:     email,
		RequestID: observability.GetRequestID(ctx),
		Message:   "delete found no identity store account; user existed only in the report store",
	}
	if err := c.auditor.Log(ctx, event); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("failed to audit orphaned delete")
	}
}

func backendLabel(stage Stage) string {
	if stage == StageIdentityStore {
		return "identity store"
	}
	return "report store"
}

// generateTemporaryPassword returns a URL-safe random first-login password
func generateTemporaryPassword() (string, error) {
	buf := make([]byte, temporaryPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/observability"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// ErrNothingSelected rejects a batch that is empty after validation, before
// any network call is made
var ErrNothingSelected = errors.New("nothing selected")

// maxConcurrentItems bounds the fan-out against the report store
const maxConcurrentItems = 8

// PermissionStore is the subset of the report store client the reconciler
// uses
type PermissionStore interface {
	ListUserPermissions(ctx context.Context, userID int64) ([]reportstore.Permission, error)
	CreatePermission(ctx context.Context, perm reportstore.Permission) (*reportstore.Permission, error)
	DeletePermission(ctx context.Context, permissionID string) error
}

// GrantRequest is one permission to create
type GrantRequest struct {
	EntityKind  reportstore.EntityKind  `json:"entityKind"`
	AccessLevel reportstore.AccessLevel `json:"accessLevel"`
	ItemID      string                  `json:"itemId,omitempty"`
	ItemName    string                  `json:"itemName,omitempty"`
}

// Outcome is the aggregate status of a batch
type Outcome string

const (
	FullSuccess    Outcome = "fullSuccess"
	PartialSuccess Outcome = "partialSuccess"
	FullFailure    Outcome = "fullFailure"
)

// ChangeOutcome describes what happened to a single row during a level
// change. DeletedOnly marks the accepted trade-off of the non-atomic
// delete-then-recreate: the old row is gone but the new one was not created.
type ChangeOutcome string

const (
	Replaced    ChangeOutcome = "replaced"
	DeletedOnly ChangeOutcome = "deletedOnly"
	Unchanged   ChangeOutcome = "unchanged"
)

// ItemResult is the outcome of one batch item
type ItemResult struct {
	Index        int           `json:"index"`
	PermissionID string        `json:"permissionId,omitempty"`
	Success      bool          `json:"success"`
	Change       ChangeOutcome `json:"change,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// BatchResult aggregates a batch after every item has finished
type BatchResult struct {
	Outcome   Outcome      `json:"outcome"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Dropped   int          `json:"dropped,omitempty"`
	Message   string       `json:"message"`
	Results   []ItemResult `json:"results"`
}

// HTTPStatus maps the aggregate outcome to a response status. Partial
// success uses 207 so callers cannot mistake it for a clean result.
func (b *BatchResult) HTTPStatus() int {
	switch b.Outcome {
	case FullSuccess:
		return http.StatusOK
	case PartialSuccess:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}

// Reconciler executes permission batches against the report store
type Reconciler struct {
	store   PermissionStore
	logger  *observability.Logger
	auditor audit.Logger
	metrics *observability.Metrics
}

// NewReconciler creates a permission reconciler
func NewReconciler(store PermissionStore, logger *observability.Logger, auditor audit.Logger, metrics *observability.Metrics) *Reconciler {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Reconciler{store: store, logger: logger, auditor: auditor, metrics: metrics}
}

// Grant creates the requested permissions for the user. Requests whose kind
// scopes to an item but carry no item id are dropped before submission; a
// batch that is empty afterwards is rejected with ErrNothingSelected and
// zero network calls.
func (r *Reconciler) Grant(ctx context.Context, userID int64, requests []GrantRequest) (*BatchResult, error) {
	effective := make([]GrantRequest, 0, len(requests))
	dropped := 0
	for _, req := range requests {
		if req.EntityKind.RequiresItem() && req.ItemID == "" {
			dropped++
			continue
		}
		effective = append(effective, req)
	}
	if len(effective) == 0 {
		return nil, fmt.Errorf("nothing to grant: %w", ErrNothingSelected)
	}

	results := make([]ItemResult, len(effective))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentItems)
	for i, req := range effective {
		g.Go(func() error {
			created, err := r.store.CreatePermission(gctx, reportstore.Permission{
				EntityKind:  req.EntityKind,
				AccessLevel: req.AccessLevel,
				ItemID:      req.ItemID,
				ItemName:    req.ItemName,
				UserID:      userID,
			})
			results[i] = ItemResult{Index: i, Success: err == nil}
			if err != nil {
				results[i].Error = err.Error()
			} else {
				results[i].PermissionID = created.ID
			}
			// Item failures stay in the result list; they never cancel
			// the siblings
			return nil
		})
	}
	g.Wait()

	result := r.aggregate("grant", results)
	result.Dropped = dropped
	r.record(ctx, audit.EventTypePermissionGrant, userID, result)
	return result, nil
}

// Revoke deletes the identified permissions. An empty id list is rejected
// with ErrNothingSelected and zero network calls.
func (r *Reconciler) Revoke(ctx context.Context, permissionIDs []string) (*BatchResult, error) {
	if len(permissionIDs) == 0 {
		return nil, fmt.Errorf("nothing to revoke: %w", ErrNothingSelected)
	}

	results := make([]ItemResult, len(permissionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentItems)
	for i, id := range permissionIDs {
		g.Go(func() error {
			err := r.store.DeletePermission(gctx, id)
			results[i] = ItemResult{Index: i, PermissionID: id, Success: err == nil}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	g.Wait()

	result := r.aggregate("revoke", results)
	r.record(ctx, audit.EventTypePermissionRevoke, 0, result)
	return result, nil
}

// ChangeAccessLevel rewrites each identified permission at the new level.
// The backend exposes no in-place update, so each item is a delete of the
// original row and creation of a replacement with the same entity kind and
// item id. When the delete succeeds but the create fails the row is gone;
// the item reports DeletedOnly rather than pretending it changed.
func (r *Reconciler) ChangeAccessLevel(ctx context.Context, userID int64, permissionIDs []string, newLevel reportstore.AccessLevel) (*BatchResult, error) {
	if len(permissionIDs) == 0 {
		return nil, fmt.Errorf("nothing to change: %w", ErrNothingSelected)
	}
	if !newLevel.Valid() {
		return nil, fmt.Errorf("unknown access level %q", newLevel)
	}

	existing, err := r.store.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	byID := make(map[string]reportstore.Permission, len(existing))
	for _, p := range existing {
		byID[p.ID] = p
	}

	results := make([]ItemResult, len(permissionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentItems)
	for i, id := range permissionIDs {
		g.Go(func() error {
			results[i] = r.changeOne(gctx, byID, id, newLevel)
			results[i].Index = i
			return nil
		})
	}
	g.Wait()

	result := r.aggregate("change_access_level", results)
	r.record(ctx, audit.EventTypePermissionChange, userID, result)
	return result, nil
}

// changeOne performs the delete-then-recreate pair for a single row
func (r *Reconciler) changeOne(ctx context.Context, byID map[string]reportstore.Permission, id string, newLevel reportstore.AccessLevel) ItemResult {
	original, ok := byID[id]
	if !ok {
		return ItemResult{PermissionID: id, Change: Unchanged, Error: "permission not found for this user"}
	}

	if err := r.store.DeletePermission(ctx, id); err != nil {
		return ItemResult{PermissionID: id, Change: Unchanged, Error: err.Error()}
	}

	replacement := original
	replacement.ID = ""
	replacement.AccessLevel = newLevel
	created, err := r.store.CreatePermission(ctx, replacement)
	if err != nil {
		// The old row is already gone; surface that honestly
		return ItemResult{PermissionID: id, Change: DeletedOnly, Error: err.Error()}
	}
	return ItemResult{PermissionID: created.ID, Change: Replaced, Success: true}
}

// aggregate computes the batch outcome after every item has finished
func (r *Reconciler) aggregate(action string, results []ItemResult) *BatchResult {
	succeeded := 0
	for _, item := range results {
		if item.Success {
			succeeded++
		}
	}
	failed := len(results) - succeeded

	outcome := PartialSuccess
	switch {
	case failed == 0:
		outcome = FullSuccess
	case succeeded == 0:
		outcome = FullFailure
	}

	if r.metrics != nil {
		r.metrics.BatchesTotal.WithLabelValues(action, string(outcome)).Inc()
		for _, item := range results {
			status := "success"
			if !item.Success {
				status = "failure"
			}
			r.metrics.BatchItemsTotal.WithLabelValues(action, status).Inc()
		}
	}

	return &BatchResult{
		Outcome:   outcome,
		Succeeded: succeeded,
		Failed:    failed,
		Message:   fmt.Sprintf("%d succeeded, %d failed", succeeded, failed),
		Results:   results,
	}
}

// record writes one audit event per batch
func (r *Reconciler) record(ctx context.Context, eventType audit.EventType, userID int64, result *BatchResult) {
	status := audit.EventStatusSuccess
	switch result.Outcome {
	case PartialSuccess:
		status = audit.EventStatusPartial
	case FullFailure:
		status = audit.EventStatusFailure
	}

	event := &audit.Event{
		EventType: eventType,
		Status:    status,
		RequestID: observability.GetRequestID(ctx),
		Message:   result.Message,
		Metadata: map[string]interface{}{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		},
	}
	if userID != 0 {
		event.Metadata["user_id"] = userID
	}
	if err := r.auditor.Log(ctx, event); err != nil && r.logger != nil {
		r.logger.WithError(err).Warn("failed to audit permission batch")
	}
}

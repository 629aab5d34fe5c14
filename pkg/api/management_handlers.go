package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/permsync/pkg/httputil"
	"github.com/platinummonkey/permsync/pkg/provision"
	"github.com/platinummonkey/permsync/pkg/reconcile"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// handleGetPermissions returns a user's permission rows, serving a cached
// snapshot while one is fresh
func (s *Server) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.ParseQueryInt64(r, "userId", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if userID == 0 {
		httputil.WriteBadRequest(w, "userId is required")
		return
	}

	if perms, ok := s.snapshots.Get(userID); ok {
		httputil.WriteSuccess(w, PermissionsResponse{Success: true, Permissions: perms})
		return
	}

	perms, err := s.reports.ListUserPermissions(r.Context(), userID)
	if err != nil {
		var notFound *reportstore.NotFoundError
		if errors.As(err, &notFound) {
			httputil.WriteNotFound(w, notFound.Error())
			return
		}
		httputil.WriteBadGateway(w, "failed to list permissions")
		return
	}

	s.snapshots.Put(userID, perms)
	httputil.WriteSuccess(w, PermissionsResponse{Success: true, Permissions: perms})
}

// handleManagement dispatches a management action
func (s *Server) handleManagement(w http.ResponseWriter, r *http.Request) {
	var req ManagementRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	switch req.Action {
	case ActionCreate:
		s.provisionAction(ctx, w, func() (*provision.Result, error) {
			return s.coordinator.CreateUser(ctx, provision.CreateRequest{
				Email:     req.Email,
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Active:    req.Active,
			})
		}, req.UserID)
	case ActionUpdate:
		s.provisionAction(ctx, w, func() (*provision.Result, error) {
			return s.coordinator.UpdateUser(ctx, provision.UpdateRequest{
				ReportStoreID: req.UserID,
				Email:         req.Email,
				FirstName:     req.FirstName,
				LastName:      req.LastName,
				Active:        req.Active,
			})
		}, req.UserID)
	case ActionDelete:
		s.provisionAction(ctx, w, func() (*provision.Result, error) {
			return s.coordinator.DeleteUser(ctx, req.Email)
		}, req.UserID)
	case ActionAddPermissions:
		s.batchAction(w, req.UserID, func() (*reconcile.BatchResult, error) {
			return s.reconciler.Grant(ctx, req.UserID, req.Permissions)
		})
	case ActionDeletePermissions:
		s.batchAction(w, req.UserID, func() (*reconcile.BatchResult, error) {
			return s.reconciler.Revoke(ctx, req.PermissionIDs)
		})
	case ActionUpdatePermissions:
		level, err := reportstore.ParseAccessLevel(req.NewAccessLevel)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.batchAction(w, req.UserID, func() (*reconcile.BatchResult, error) {
			return s.reconciler.ChangeAccessLevel(ctx, req.UserID, req.PermissionIDs, level)
		})
	default:
		httputil.WriteBadRequest(w, fmt.Sprintf("unknown action %q", req.Action))
	}
}

// provisionAction runs a cross-backend user write and translates its result.
// Any write invalidates the user's permission snapshot.
func (s *Server) provisionAction(ctx context.Context, w http.ResponseWriter, run func() (*provision.Result, error), userID int64) {
	result, err := run()
	if userID != 0 {
		s.snapshots.Invalidate(userID)
	}
	if result != nil && result.ReportStoreID != 0 {
		s.snapshots.Invalidate(result.ReportStoreID)
	}

	if err != nil {
		var failure *provision.StageFailure
		if errors.As(err, &failure) && result != nil {
			httputil.WriteJSON(w, http.StatusBadGateway, ProvisionResponse{
				Success:            false,
				Message:            result.Message,
				Stage:              string(result.Stage),
				CompensationFailed: result.CompensationFailed,
			})
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteSuccess(w, ProvisionResponse{
		Success:                true,
		Message:                result.Message,
		UserID:                 result.ReportStoreID,
		IdentityStoreID:        result.IdentityStoreID,
		TemporaryPassword:      result.TemporaryPassword,
		PasswordResetPending:   result.PasswordResetPending,
		IdentityAccountMissing: result.IdentityAccountMissing,
	})
}

// batchAction runs a permission batch and answers with the aggregate's
// status code: 200, 207 for partial success, 502 when nothing succeeded
func (s *Server) batchAction(w http.ResponseWriter, userID int64, run func() (*reconcile.BatchResult, error)) {
	result, err := run()
	if userID != 0 {
		s.snapshots.Invalidate(userID)
	}

	if err != nil {
		if errors.Is(err, reconcile.ErrNothingSelected) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		httputil.WriteBadGateway(w, err.Error())
		return
	}

	httputil.WriteJSON(w, result.HTTPStatus(), BatchResponse{
		Success: result.Outcome == reconcile.FullSuccess,
		Outcome: result.Outcome,
		Message: result.Message,
		Results: result.Results,
	})
}

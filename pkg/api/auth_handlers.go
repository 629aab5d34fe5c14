package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/permsync/pkg/access"
	"github.com/platinummonkey/permsync/pkg/httputil"
	"github.com/platinummonkey/permsync/pkg/reportstore"
	"github.com/platinummonkey/permsync/pkg/token"
)

// handleAuth resolves a user's synchronization state and hands the frontend
// a viewer token. A user the report store does not know is a successful
// answer with synced=false; provisioning them is a separate management
// action.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	ctx := r.Context()
	user, err := s.reports.GetUserByEmail(ctx, email)
	if err != nil {
		var notFound *reportstore.NotFoundError
		if errors.As(err, &notFound) {
			httputil.WriteSuccess(w, AuthResponse{
				Success: true,
				Synced:  false,
				Email:   email,
				Message: "user is not synchronized with the report store",
			})
			return
		}
		var acqErr *token.AcquisitionError
		if errors.As(err, &acqErr) {
			httputil.WriteBadGateway(w, acqErr.Error())
			return
		}
		httputil.WriteBadGateway(w, "report store lookup failed")
		return
	}

	groups := user.Groups
	if len(groups) == 0 {
		memberships, groupErr := s.reports.GetUserGroups(ctx, user.ID)
		if groupErr != nil {
			if s.logger != nil {
				s.logger.WithError(groupErr).WithField("email", email).
					Warn("group lookup failed; answering without group membership")
			}
		} else {
			groups = make([]string, 0, len(memberships))
			for _, g := range memberships {
				groups = append(groups, g.Name)
			}
		}
	}

	viewerToken, err := s.tokens.Acquire(ctx)
	if err != nil {
		httputil.WriteBadGateway(w, err.Error())
		return
	}

	httputil.WriteSuccess(w, AuthResponse{
		Success:   true,
		Synced:    true,
		BoldToken: viewerToken,
		UserID:    user.ID,
		Email:     user.Email,
		IsAdmin:   access.IsAdmin(groups, s.cfg.AdminGroup),
		Groups:    groups,
	})
}

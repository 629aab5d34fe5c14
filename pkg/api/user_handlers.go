package api

import (
	"net/http"

	"github.com/platinummonkey/permsync/pkg/httputil"
)

// handleListUsers lists report store users with their group membership. A
// failed group lookup leaves that user's groups empty rather than failing
// the whole listing.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := s.reports.ListUsers(ctx)
	if err != nil {
		httputil.WriteBadGateway(w, "failed to list report store users")
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		summary := UserSummary{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName(),
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Active:      user.Active,
			Groups:      user.Groups,
		}
		if summary.Groups == nil {
			memberships, groupErr := s.reports.GetUserGroups(ctx, user.ID)
			if groupErr != nil {
				if s.logger != nil {
					s.logger.WithError(groupErr).WithField("email", user.Email).
						Warn("group enrichment failed for user listing")
				}
				summary.Groups = []string{}
			} else {
				summary.Groups = make([]string, 0, len(memberships))
				for _, g := range memberships {
					summary.Groups = append(summary.Groups, g.Name)
				}
			}
		}
		summaries = append(summaries, summary)
	}

	httputil.WriteSuccess(w, UsersResponse{Success: true, Users: summaries})
}

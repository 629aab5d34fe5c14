package api

import (
	"net/http"

	"github.com/platinummonkey/permsync/pkg/httputil"
	"github.com/platinummonkey/permsync/pkg/options"
)

// handleReportOptions serves the cascading filter options for the report
// picker. The caller passes its current selection as query parameters named
// after the hierarchy levels; asking for a level whose parent is unselected
// is a client error.
func (s *Server) handleReportOptions(w http.ResponseWriter, r *http.Request) {
	level := httputil.ParseQueryString(r, "level", "")
	if level == "" {
		httputil.WriteBadRequest(w, "level is required")
		return
	}

	selection := options.Selection{}
	for _, name := range s.hierarchy.Levels() {
		if value := r.URL.Query().Get(name); value != "" {
			selection[name] = value
		}
	}

	opts, err := s.hierarchy.OptionsFor(r.Context(), selection, level)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"success": true,
		"level":   level,
		"options": opts,
	})
}

package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/permsync/pkg/middleware"
	"github.com/platinummonkey/permsync/pkg/observability"
	"github.com/platinummonkey/permsync/pkg/options"
	"github.com/platinummonkey/permsync/pkg/provision"
	"github.com/platinummonkey/permsync/pkg/reconcile"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// TokenSource supplies viewer tokens for the embedding frontend
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
}

// ReportStore is the read surface the handlers use directly
type ReportStore interface {
	GetUserByEmail(ctx context.Context, email string) (*reportstore.User, error)
	ListUsers(ctx context.Context) ([]reportstore.User, error)
	GetUserGroups(ctx context.Context, userID int64) ([]reportstore.Group, error)
	ListUserPermissions(ctx context.Context, userID int64) ([]reportstore.Permission, error)
}

// Coordinator runs cross-backend user writes
type Coordinator interface {
	CreateUser(ctx context.Context, req provision.CreateRequest) (*provision.Result, error)
	UpdateUser(ctx context.Context, req provision.UpdateRequest) (*provision.Result, error)
	DeleteUser(ctx context.Context, email string) (*provision.Result, error)
}

// Reconciler executes permission batches
type Reconciler interface {
	Grant(ctx context.Context, userID int64, requests []reconcile.GrantRequest) (*reconcile.BatchResult, error)
	Revoke(ctx context.Context, permissionIDs []string) (*reconcile.BatchResult, error)
	ChangeAccessLevel(ctx context.Context, userID int64, permissionIDs []string, newLevel reportstore.AccessLevel) (*reconcile.BatchResult, error)
}

// ServerConfig holds the API server's settings
type ServerConfig struct {
	// AdminGroup is the report store group that marks global administrators
	AdminGroup string
}

// Server is the permsync API server
type Server struct {
	cfg         ServerConfig
	router      *mux.Router
	tokens      TokenSource
	reports     ReportStore
	coordinator Coordinator
	reconciler  Reconciler
	snapshots   *SnapshotCache
	hierarchy   *options.Hierarchy
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewServer creates the API server and mounts its routes. The options
// hierarchy is optional; without one the filter-options endpoint answers
// 404.
func NewServer(
	cfg ServerConfig,
	tokens TokenSource,
	reports ReportStore,
	coordinator Coordinator,
	reconciler Reconciler,
	snapshots *SnapshotCache,
	hierarchy *options.Hierarchy,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	if snapshots == nil {
		snapshots = NewSnapshotCache(0, 0, metrics)
	}
	s := &Server{
		cfg:         cfg,
		router:      mux.NewRouter(),
		tokens:      tokens,
		reports:     reports,
		coordinator: coordinator,
		reconciler:  reconciler,
		snapshots:   snapshots,
		hierarchy:   hierarchy,
		logger:      logger,
		metrics:     metrics,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/auth", s.handleAuth).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/users", s.handleListUsers).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/user-management", s.handleGetPermissions).Methods(http.MethodGet)
	s.router.HandleFunc("/user-management", s.handleManagement).Methods(http.MethodPost, http.MethodOptions)
	if s.hierarchy != nil {
		s.router.HandleFunc("/report-options", s.handleReportOptions).Methods(http.MethodGet)
	}
	s.router.Use(middleware.CORS)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

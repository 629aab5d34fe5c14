package api

import (
	"github.com/platinummonkey/permsync/pkg/reconcile"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// AuthRequest is the body of POST /auth
type AuthRequest struct {
	Email string `json:"email"`
}

// AuthResponse reports a user's synchronization state plus the viewer token
// an embedding frontend needs. Synced=false with Success=true means the user
// exists in the identity store but has not been provisioned in the report
// store yet.
type AuthResponse struct {
	Success   bool     `json:"success"`
	Synced    bool     `json:"synced"`
	BoldToken string   `json:"boldToken,omitempty"`
	UserID    int64    `json:"userId,omitempty"`
	Email     string   `json:"email,omitempty"`
	IsAdmin   bool     `json:"isAdmin,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// UserSummary is one row of the POST /users listing
type UserSummary struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Active      bool     `json:"isActive"`
	Groups      []string `json:"groups"`
}

// UsersResponse is the body of POST /users
type UsersResponse struct {
	Success bool          `json:"success"`
	Users   []UserSummary `json:"users"`
}

// PermissionsResponse is the body of GET /user-management
type PermissionsResponse struct {
	Success     bool                     `json:"success"`
	Permissions []reportstore.Permission `json:"permissions"`
}

// Management actions accepted by POST /user-management
const (
	ActionCreate            = "create"
	ActionUpdate            = "update"
	ActionDelete            = "delete"
	ActionAddPermissions    = "addMultiplePermissions"
	ActionDeletePermissions = "deleteMultiplePermissions"
	ActionUpdatePermissions = "updatePermissions"
)

// ManagementRequest is the body of POST /user-management. Which fields are
// read depends on the action.
type ManagementRequest struct {
	Action string `json:"action"`

	// create / update / delete
	UserID    int64  `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Active    bool   `json:"active,omitempty"`

	// permission batches
	Permissions    []reconcile.GrantRequest `json:"permissions,omitempty"`
	PermissionIDs  []string                 `json:"permissionIds,omitempty"`
	NewAccessLevel string                   `json:"newAccessLevel,omitempty"`
}

// BatchResponse is the body of a permission batch action. The aggregate
// status and per-item results come straight from the reconciler.
type BatchResponse struct {
	Success bool                   `json:"success"`
	Outcome reconcile.Outcome      `json:"outcome"`
	Message string                 `json:"message"`
	Results []reconcile.ItemResult `json:"results"`
}

// ProvisionResponse is the body of a create/update/delete action
type ProvisionResponse struct {
	Success                bool   `json:"success"`
	Message                string `json:"message"`
	Stage                  string `json:"stage,omitempty"`
	UserID                 int64  `json:"userId,omitempty"`
	IdentityStoreID        string `json:"identityStoreId,omitempty"`
	TemporaryPassword      string `json:"temporaryPassword,omitempty"`
	PasswordResetPending   bool   `json:"passwordResetPending,omitempty"`
	CompensationFailed     bool   `json:"compensationFailed,omitempty"`
	IdentityAccountMissing bool   `json:"identityAccountMissing,omitempty"`
}

package reportstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/permsync/pkg/observability"
)

// TokenSource supplies bearer tokens for report store calls. *token.Broker
// satisfies it.
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
}

// ClientConfig holds the settings for a Client
type ClientConfig struct {
	// BaseURL is the report store API root, without a trailing slash
	BaseURL string

	// SiteID scopes every call to one report store tenant
	SiteID string

	// Timeout bounds each outbound call; defaults to 30s
	Timeout time.Duration
}

// Client is the report store API client. It is stateless apart from the
// injected token source and safe for concurrent use.
type Client struct {
	cfg        ClientConfig
	tokens     TokenSource
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates a new report store client
func NewClient(cfg ClientConfig, tokens TokenSource, logger *observability.Logger, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// GetUserByEmail looks up a user by the email natural key. Returns
// *NotFoundError when no such user exists.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	path := "users/by-email/" + url.PathEscape(email)
	if err := c.do(ctx, "get_user_by_email", http.MethodGet, path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users on the site
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, "list_users", http.MethodGet, "users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetUserGroups returns the groups a user belongs to
func (c *Client) GetUserGroups(ctx context.Context, userID int64) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	path := fmt.Sprintf("users/%d/groups", userID)
	if err := c.do(ctx, "get_user_groups", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// CreateUser creates a user and returns the record with its assigned id
func (c *Client) CreateUser(ctx context.Context, user User) (*User, error) {
	var created User
	if err := c.do(ctx, "create_user", http.MethodPost, "users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateUser updates an existing user record
func (c *Client) UpdateUser(ctx context.Context, user User) error {
	path := fmt.Sprintf("users/%d", user.ID)
	return c.do(ctx, "update_user", http.MethodPut, path, user, nil)
}

// DeleteUser removes a user by id
func (c *Client) DeleteUser(ctx context.Context, userID int64) error {
	path := fmt.Sprintf("users/%d", userID)
	return c.do(ctx, "delete_user", http.MethodDelete, path, nil, nil)
}

// DeleteUserByEmail removes a user by the email natural key. Provisioning
// compensation uses this so the rollback targets exactly the email that was
// just created, without a second lookup.
func (c *Client) DeleteUserByEmail(ctx context.Context, email string) error {
	path := "users/by-email/" + url.PathEscape(email)
	return c.do(ctx, "delete_user_by_email", http.MethodDelete, path, nil, nil)
}

// ListGroups returns all groups on the site
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, "list_groups", http.MethodGet, "groups", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// AddUserToGroup adds a user to a group
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	path := fmt.Sprintf("groups/%d/users/%d", groupID, userID)
	return c.do(ctx, "add_user_to_group", http.MethodPost, path, nil, nil)
}

// RemoveUserFromGroup removes a user from a group
func (c *Client) RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error {
	path := fmt.Sprintf("groups/%d/users/%d", groupID, userID)
	return c.do(ctx, "remove_user_from_group", http.MethodDelete, path, nil, nil)
}

// ListUserPermissions returns the permission rows owned by a user
func (c *Client) ListUserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	var resp struct {
		Permissions []Permission `json:"permissions"`
	}
	path := fmt.Sprintf("users/%d/permissions", userID)
	if err := c.do(ctx, "list_user_permissions", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

// CreatePermission creates a permission row and returns it with its assigned
// id. The row is validated locally first; the item-id invariant never reaches
// the wire broken.
func (c *Client) CreatePermission(ctx context.Context, perm Permission) (*Permission, error) {
	if err := perm.Validate(); err != nil {
		return nil, fmt.Errorf("invalid permission: %w", err)
	}
	var created Permission
	if err := c.do(ctx, "create_permission", http.MethodPost, "permissions", perm, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeletePermission removes a permission row by id
func (c *Client) DeletePermission(ctx context.Context, permissionID string) error {
	path := "permissions/" + url.PathEscape(permissionID)
	return c.do(ctx, "delete_permission", http.MethodDelete, path, nil, nil)
}

// errorResponse is the wire shape of a report store error body
type errorResponse struct {
	Error string `json:"error"`
}

// do executes one authenticated call against the site-scoped API and decodes
// the response into out when out is non-nil
func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	if c.metrics != nil {
		c.metrics.ObserveBackendCall("report_store", operation, start, err)
	}
	if err != nil && c.logger != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"backend":   "report_store",
			"operation": operation,
		}).Debug("report store call failed")
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	bearer, err := c.tokens.Acquire(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := fmt.Sprintf("%s/api/site/%s/v1.0/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.SiteID), path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("report store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		resource, key := splitResourceKey(path)
		return &NotFoundError{Resource: resource, Key: key}
	}
	if resp.StatusCode >= 400 {
		var errBody errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			return fmt.Errorf("report store returned status %d: %s", resp.StatusCode, errBody.Error)
		}
		return fmt.Errorf("report store returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode report store response: %w", err)
		}
	}
	return nil
}

// splitResourceKey derives a resource label and lookup key for NotFoundError
// from the request path: the first segment names the resource, the last
// segment is the key
func splitResourceKey(path string) (string, string) {
	segments := strings.Split(path, "/")
	resource := segments[0]
	key := segments[len(segments)-1]
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return resource, key
}

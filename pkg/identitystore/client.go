package identitystore

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

// ServiceKeyHeader carries the service-role key on every admin call
const ServiceKeyHeader = "X-Service-Key"

// User is an account in the identity store
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Confirmed   bool   `json:"confirmed"`
}

// NotFoundError indicates the identity store has no account for the email
// or id
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("user %q not found in identity store", e.Key)
}

// ClientConfig holds the settings for a Client
type ClientConfig struct {
	// BaseURL is the identity store admin API root, without a trailing slash
	BaseURL string

	// ServiceKey is the service-role key authorizing admin calls
	ServiceKey string

	// Timeout bounds each outbound call; defaults to 30s
	Timeout time.Duration
}

// Client is the identity store admin client. Stateless and safe for
// concurrent use.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates a new identity store client
func NewClient(cfg ClientConfig, logger *observability.Logger, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// createUserRequest is the wire shape of an admin user creation
type createUserRequest struct {
	Email             string `json:"email"`
	DisplayName       string `json:"displayName,omitempty"`
	TemporaryPassword string `json:"temporaryPassword"`
	EmailConfirmed    bool   `json:"emailConfirmed"`
}

// CreateUser creates an auto-confirmed account with a temporary password.
// The identity store creates the profile row implicitly.
func (c *Client) CreateUser(ctx context.Context, email, displayName, temporaryPassword string) (*User, error) {
	req := createUserRequest{
		Email:             email,
		DisplayName:       displayName,
		TemporaryPassword: temporaryPassword,
		EmailConfirmed:    true,
	}
	var user User
	if err := c.do(ctx, "create_user", http.MethodPost, "admin/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail looks up an account by email. Returns *NotFoundError when
// no account exists.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	path := "admin/users/by-email/" + url.PathEscape(email)
	if err := c.do(ctx, "get_user_by_email", http.MethodGet, path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account by its UUID
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	path := "admin/users/" + url.PathEscape(userID)
	return c.do(ctx, "delete_user", http.MethodDelete, path, nil, nil)
}

// UpdateProfile sets the display name on an account's profile
func (c *Client) UpdateProfile(ctx context.Context, userID, displayName string) error {
	path := "admin/users/" + url.PathEscape(userID) + "/profile"
	body := map[string]string{"displayName": displayName}
	return c.do(ctx, "update_profile", http.MethodPut, path, body, nil)
}

// SetNeedsPasswordReset flags the profile so the user must change the
// temporary password on first login
func (c *Client) SetNeedsPasswordReset(ctx context.Context, userID string, needsReset bool) error {
	path := "admin/users/" + url.PathEscape(userID) + "/profile"
	body := map[string]bool{"needsPasswordReset": needsReset}
	return c.do(ctx, "set_needs_password_reset", http.MethodPut, path, body, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	if c.metrics != nil {
		c.metrics.ObserveBackendCall("identity_store", operation, start, err)
	}
	if err != nil && c.logger != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"backend":   "identity_store",
			"operation": operation,
		}).Debug("identity store call failed")
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := fmt.Sprintf("%s/%s", c.cfg.BaseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(ServiceKeyHeader, c.cfg.ServiceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		segments := strings.Split(path, "/")
		key := segments[len(segments)-1]
		if unescaped, unescapeErr := url.PathUnescape(key); unescapeErr == nil {
			key = unescaped
		}
		return &NotFoundError{Key: key}
	}
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			return fmt.Errorf("identity store returned status %d: %s", resp.StatusCode, errBody.Error)
		}
		return fmt.Errorf("identity store returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode identity store response: %w", err)
		}
	}
	return nil
}

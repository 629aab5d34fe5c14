package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/permsync/pkg/observability"
)

const (
	// GrantType is the non-interactive service-to-service grant
	GrantType = "embed_secret"

	// SafetyMargin is subtracted from the reported token lifetime so a
	// token is never used right at its expiry edge
	SafetyMargin = 5 * time.Minute
)

// AcquisitionError reports a failed token refresh. It is not retried within
// a logical operation; callers may retry the whole operation.
type AcquisitionError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token acquisition failed: %s: %v", e.Reason, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("token acquisition failed: %s (status %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("token acquisition failed: %s", e.Reason)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Config holds the settings for a Broker
type Config struct {
	// TokenURL is the report store token endpoint
	TokenURL string

	// ServiceAccountEmail identifies the service account the grant is for
	ServiceAccountEmail string

	// EmbedSecret signs the grant request
	EmbedSecret string

	// HTTPClient is optional; a default client with a bounded timeout is
	// used when nil
	HTTPClient *http.Client

	// Now is optional and exists for tests; defaults to time.Now
	Now func() time.Time
}

// Broker acquires and caches the report store service token. It implements
// oauth2.TokenSource. The cached token is the only shared state in the
// process; refresh races are tolerated because bearer tokens are fungible —
// the worst case is a redundant fetch.
type Broker struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	metrics    *observability.Metrics

	mu     sync.Mutex
	cached *oauth2.Token
}

var _ oauth2.TokenSource = (*Broker)(nil)

// NewBroker creates a new token broker
func NewBroker(cfg Config, metrics *observability.Metrics) *Broker {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Broker{
		cfg:        cfg,
		httpClient: client,
		now:        now,
		metrics:    metrics,
	}
}

// Token implements oauth2.TokenSource
func (b *Broker) Token() (*oauth2.Token, error) {
	return b.token(context.Background())
}

// Acquire returns a valid bearer token, refreshing it if the cached one is
// missing or past its (margin-adjusted) expiry
func (b *Broker) Acquire(ctx context.Context) (string, error) {
	tok, err := b.token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next acquire refreshes
func (b *Broker) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = nil
}

func (b *Broker) token(ctx context.Context) (*oauth2.Token, error) {
	b.mu.Lock()
	if b.cached != nil && b.now().Before(b.cached.Expiry) {
		tok := b.cached
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.TokenCacheHitsTotal.Inc()
		}
		return tok, nil
	}
	b.mu.Unlock()

	tok, err := b.refresh(ctx)
	if err != nil {
		if b.metrics != nil {
			b.metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		}
		return nil, err
	}

	if b.metrics != nil {
		b.metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	}

	b.mu.Lock()
	b.cached = tok
	b.mu.Unlock()

	return tok, nil
}

// tokenResponse is the wire shape of the token endpoint response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// refresh performs the signed embed_secret grant
func (b *Broker) refresh(ctx context.Context) (*oauth2.Token, error) {
	nonce := uuid.NewString()
	timestamp := fmt.Sprintf("%d", b.now().Unix())
	signature := Sign(b.cfg.EmbedSecret, nonce, b.cfg.ServiceAccountEmail, timestamp)

	form := url.Values{}
	form.Set("grant_type", GrantType)
	form.Set("username", b.cfg.ServiceAccountEmail)
	form.Set("embed_nonce", nonce)
	form.Set("timestamp", timestamp)
	form.Set("embed_signature", signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AcquisitionError{Reason: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &AcquisitionError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &AcquisitionError{StatusCode: resp.StatusCode, Reason: "token endpoint rejected grant"}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &AcquisitionError{Reason: "malformed token response", Err: err}
	}
	if body.AccessToken == "" || body.ExpiresIn <= 0 {
		return nil, &AcquisitionError{Reason: "token response missing access_token or expires_in"}
	}

	return &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		Expiry:      b.now().Add(time.Duration(body.ExpiresIn)*time.Second - SafetyMargin),
	}, nil
}

// Sign computes the HMAC-SHA256 grant signature over the canonical
// lowercased message keyed by the shared embed secret
func Sign(secret, nonce, email, timestamp string) string {
	message := strings.ToLower(fmt.Sprintf("embed_nonce=%s&user_email=%s&timestamp=%s", nonce, email, timestamp))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Default REST client settings.
const (
	defaultAPIRate       rate.Limit    = 10
	defaultAPIBurst      int           = 5
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

const maxAPIResponseBytes = 4 << 20

// APIConfig configures the REST bootstrap client.
type APIConfig struct {
	BaseURL    string       // e.g. "https://chat.example.com/api"
	Token      string       // bearer token; same token as the WebSocket auth
	HTTPClient *http.Client // defaults to http.DefaultClient
	Logger     *slog.Logger

	// RateLimit caps outgoing requests per second; Burst allows short spikes.
	RateLimit rate.Limit
	Burst     int

	// MaxFailures consecutive 5xx or transport failures open the breaker for
	// BreakerTimeout. BreakerInterval clears the failure count while closed.
	MaxFailures     uint32
	BreakerTimeout  time.Duration
	BreakerInterval time.Duration
}

// APIError is a non-2xx REST response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api returned %d: %s", e.StatusCode, e.Body)
}

// APIClient lists partners and groups over REST. It works independently of
// the WebSocket Client; no live connection is needed.
type APIClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewAPIClient creates a REST client.
func NewAPIClient(cfg APIConfig) (*APIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base url not configured")
	}
	if cfg.Token == "" {
		return nil, &AuthError{Message: "missing token"}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultAPIRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultAPIBurst
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultCBMaxFailures
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = defaultCBTimeout
	}
	if cfg.BreakerInterval == 0 {
		cfg.BreakerInterval = defaultCBInterval
	}

	logger := cfg.Logger
	maxFailures := cfg.MaxFailures
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "chat-api",
		MaxRequests: 1, // one probe while half-open
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Client errors are the caller's fault and never trip the breaker.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &APIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		breaker: breaker,
		logger:  logger,
		token:   cfg.Token,
	}, nil
}

// API returns a REST client for the server this Client connects to, using
// Config.APIEndpoint or an address derived from Config.Endpoint.
func (c *Client) API(token string) (*APIClient, error) {
	return NewAPIClient(APIConfig{
		BaseURL: resolveAPIBase(c.cfg),
		Token:   token,
		Logger:  c.logger,
	})
}

// BaseURL returns the REST base URL.
func (c *APIClient) BaseURL() string { return c.baseURL }

// SetToken replaces the bearer token, e.g. after a refresh.
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// --------------------------------------------------------------------------
// Bootstrap
// --------------------------------------------------------------------------

// ListPartners returns every user the caller has a direct conversation with.
func (c *APIClient) ListPartners(ctx context.Context) ([]Partner, error) {
	var resp []Partner
	if err := c.doJSON(ctx, http.MethodGet, "/chat/partners", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListGroups returns every group the caller belongs to.
func (c *APIClient) ListGroups(ctx context.Context) ([]GroupSummary, error) {
	var resp []GroupSummary
	if err := c.doJSON(ctx, http.MethodGet, "/chat/groups", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// authedRequest creates an HTTP request with the bearer token set.
func (c *APIClient) authedRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.mu.RUnlock()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON sends an authed request through the rate limiter and circuit
// breaker and decodes the JSON response into dest.
func (c *APIClient) doJSON(ctx context.Context, method, path string, reqBody, dest any) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := c.authedRequest(ctx, method, path, r)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		return b, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s %s: circuit open: %w", method, path, err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return &AuthError{Message: apiErr.Body}
		}
		return err
	}

	if dest != nil && len(body) > 0 {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// resolveAPIBase returns Config.APIEndpoint, or derives "{http|https}://host/api"
// from the WebSocket endpoint.
func resolveAPIBase(cfg Config) string {
	if cfg.APIEndpoint != "" {
		return strings.TrimRight(cfg.APIEndpoint, "/")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return "http://localhost/api"
	}
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + "/api"
}

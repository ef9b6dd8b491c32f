// Package hubspot is the wire client for the remote CRM: the OAuth token
// endpoints, the deals listing, batch object reads, and the per-deal
// associations endpoint. It does no retrying itself; callers wrap calls in
// the retry package and branch on the error types defined here.
package hubspot

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/dealguard/dealguard/internal/config"
	apperrors "github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/logging"
)

// Client talks to the HubSpot CRM API.
type Client struct {
	apiBaseURL string
	oauth      *oauth2.Config
	http       *http.Client
	logger     *logging.Logger
}

// New creates a Client from the HubSpot configuration section.
func New(cfg config.HubSpotConfig, logger *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		apiBaseURL: cfg.APIBaseURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthBaseURL + "/oauth/authorize",
				TokenURL:  cfg.APIBaseURL + "/oauth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// InvalidGrantError means the remote authority rejected a refresh token or
// authorization code. It is never transient: the grant is gone.
type InvalidGrantError struct {
	StatusCode int
	Body       string
}

func (e *InvalidGrantError) Error() string {
	return fmt.Sprintf("oauth grant rejected: status %d: %s", e.StatusCode, e.Body)
}

// checkResponse classifies a non-2xx response. Rate limits and server-side
// failures come back as TransientError so the retry layer picks them up;
// everything else is a plain error.
func checkResponse(operation string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusTooManyRequests {
		return &apperrors.TransientError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header),
		}
	}
	if resp.StatusCode >= 500 {
		return &apperrors.TransientError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
		}
	}
	return fmt.Errorf("%s: status %d: %s", operation, resp.StatusCode, string(body))
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// doJSON performs an authenticated request and decodes the JSON response
// into out. Network-level failures are reported as transient.
func (c *Client) doJSON(req *http.Request, token, operation string, out any) error {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperrors.TransientError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	if err := checkResponse(operation, resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

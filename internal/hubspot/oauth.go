package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/dealguard/dealguard/internal/errors"
)

// TokenResponse is the token endpoint payload for both code exchange and
// refresh. ExpiresIn is seconds from now.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// AuthorizeURL builds the user-facing consent URL carrying the signed state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a token set.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			switch {
			case rerr.Response.StatusCode == http.StatusTooManyRequests:
				return nil, &apperrors.TransientError{
					Operation:  "exchange code",
					StatusCode: rerr.Response.StatusCode,
					RetryAfter: retryAfter(rerr.Response.Header),
				}
			case rerr.Response.StatusCode >= 500:
				return nil, &apperrors.TransientError{
					Operation:  "exchange code",
					StatusCode: rerr.Response.StatusCode,
				}
			default:
				return nil, &InvalidGrantError{
					StatusCode: rerr.Response.StatusCode,
					Body:       strings.TrimSpace(string(rerr.Body)),
				}
			}
		}
		return nil, &apperrors.TransientError{Operation: "exchange code", Err: err}
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	scope, _ := tok.Extra("scope").(string)
	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		Scope:        scope,
	}, nil
}

// RefreshToken trades a refresh token for a fresh access token. A 4xx from
// the token endpoint means the grant itself is dead and the user must
// reconnect; rate limits and 5xx are transient.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.oauth.ClientID},
		"client_secret": {c.oauth.ClientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperrors.TransientError{Operation: "refresh token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &apperrors.TransientError{
				Operation:  "refresh token",
				StatusCode: resp.StatusCode,
				RetryAfter: retryAfter(resp.Header),
			}
		case resp.StatusCode >= 500:
			return nil, &apperrors.TransientError{
				Operation:  "refresh token",
				StatusCode: resp.StatusCode,
			}
		default:
			return nil, &InvalidGrantError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
		}
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

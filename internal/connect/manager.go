// Package connect owns the CRM credential lifecycle: starting and completing
// the OAuth authorization, keeping access tokens fresh, and tearing the
// connection down when the user disconnects or the grant dies.
package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealguard/dealguard/internal/config"
	apperrors "github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/hubspot"
	"github.com/dealguard/dealguard/internal/logging"
	"github.com/dealguard/dealguard/internal/models"
	"github.com/dealguard/dealguard/internal/retry"
	"github.com/dealguard/dealguard/internal/store"
)

// TokenClient is the subset of the CRM client the credential lifecycle needs.
type TokenClient interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*hubspot.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*hubspot.TokenResponse, error)
}

// Notifier receives operator-facing alerts. The telegram notifier implements
// it; a nil Notifier disables alerting.
type Notifier interface {
	ConnectionLost(ctx context.Context, userID, reason string)
}

// RefreshRecorder counts refresh outcomes. *metrics.Metrics implements it.
type RefreshRecorder interface {
	RecordTokenRefresh(result string)
}

// Manager drives the credential lifecycle against the store and the remote
// token endpoints.
type Manager struct {
	store     store.Store
	crm       TokenClient
	logger    *logging.Logger
	notifier  Notifier
	secret    []byte
	stateTTL  time.Duration
	tokenSkew time.Duration
	retryOpts []retry.Option
	refreshes RefreshRecorder

	now func() time.Time
}

// SetRefreshRecorder attaches a refresh outcome counter. Optional; commands
// that run without a metrics endpoint leave it unset.
func (m *Manager) SetRefreshRecorder(r RefreshRecorder) {
	m.refreshes = r
}

func (m *Manager) recordRefresh(result string) {
	if m.refreshes != nil {
		m.refreshes.RecordTokenRefresh(result)
	}
}

// NewManager wires the lifecycle from configuration. cfg must have passed
// Validate, in particular StateSecret is non-empty.
func NewManager(st store.Store, crm TokenClient, cfg *config.Config, logger *logging.Logger, notifier Notifier) *Manager {
	return &Manager{
		store:     st,
		crm:       crm,
		logger:    logger,
		notifier:  notifier,
		secret:    []byte(cfg.HubSpot.StateSecret),
		stateTTL:  cfg.HubSpot.StateTTL,
		tokenSkew: cfg.Sync.TokenSkew,
		retryOpts: []retry.Option{
			retry.WithMaxRetries(cfg.Sync.MaxRetries),
			retry.WithBaseDelay(cfg.Sync.BaseDelay),
		},
		now: time.Now,
	}
}

// StartAuthorization returns the consent URL that sends the user to the CRM
// with a signed, expiring state bound to their identity.
func (m *Manager) StartAuthorization(userID string) (string, error) {
	state, err := signState(m.secret, userID, m.now().Add(m.stateTTL))
	if err != nil {
		return "", err
	}
	return m.crm.AuthorizeURL(state), nil
}

// CompleteAuthorization handles the OAuth callback: it verifies the state,
// exchanges the code, and persists the credential. It returns the user the
// authorization belongs to so the HTTP layer can redirect appropriately.
func (m *Manager) CompleteAuthorization(ctx context.Context, state, code string) (string, error) {
	userID, err := verifyState(m.secret, state, m.now())
	if err != nil {
		return "", err
	}

	tok, err := m.crm.ExchangeCode(ctx, code)
	if err != nil {
		return userID, fmt.Errorf("exchange authorization code: %w", err)
	}

	now := m.now()
	cred := &models.Credential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(tok.ExpiresIn) * time.Second),
		Scope:        tok.Scope,
		UpdatedAt:    now,
	}
	if err := m.store.SetCredential(cred); err != nil {
		return userID, fmt.Errorf("persist credential: %w", err)
	}

	m.logger.InfoWithContext(ctx, "crm connection established", "user_id", userID, "scope", tok.Scope)
	return userID, nil
}

// EnsureValidToken returns an access token usable right now. Tokens within
// the configured skew of expiry count as expired and are refreshed first.
// When the remote authority rejects the refresh token the stored credential
// is deleted and ErrReconnectRequired comes back: stale secrets must not
// outlive their revocation.
func (m *Manager) EnsureValidToken(ctx context.Context, userID string) (string, error) {
	cred, ok := m.store.GetCredential(userID)
	if !ok {
		return "", apperrors.ErrReconnectRequired
	}

	if !cred.Expired(m.now().Add(m.tokenSkew)) {
		return cred.AccessToken, nil
	}

	tok, err := retry.Do(ctx, func(ctx context.Context) (*hubspot.TokenResponse, error) {
		t, err := m.crm.RefreshToken(ctx, cred.RefreshToken)
		if err != nil {
			var invalid *hubspot.InvalidGrantError
			if errors.As(err, &invalid) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return t, nil
	}, m.retryOpts...)
	if err != nil {
		var invalid *hubspot.InvalidGrantError
		if errors.As(err, &invalid) {
			m.recordRefresh("invalid_grant")
			return "", m.invalidate(ctx, userID, invalid)
		}
		m.recordRefresh("error")
		return "", fmt.Errorf("refresh token: %w", err)
	}

	now := m.now()
	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	cred.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	if tok.Scope != "" {
		cred.Scope = tok.Scope
	}
	cred.UpdatedAt = now
	if err := m.store.SetCredential(cred); err != nil {
		return "", fmt.Errorf("persist refreshed credential: %w", err)
	}

	m.recordRefresh("success")
	m.logger.DebugWithContext(ctx, "access token refreshed", "user_id", userID)
	return cred.AccessToken, nil
}

// invalidate removes a dead credential and reports ErrReconnectRequired.
func (m *Manager) invalidate(ctx context.Context, userID string, cause error) error {
	if err := m.store.DeleteCredential(userID); err != nil {
		m.logger.ErrorWithContext(ctx, "failed to delete invalidated credential",
			"user_id", userID, "error", err.Error())
	}
	m.logger.WarnWithContext(ctx, "refresh token rejected, connection invalidated",
		"user_id", userID, "cause", cause.Error())
	if m.notifier != nil {
		m.notifier.ConnectionLost(ctx, userID, cause.Error())
	}
	return apperrors.ErrReconnectRequired
}

// Disconnect removes the stored credential. Synced deals stay: disconnecting
// stops future syncs, it does not erase history.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	if _, ok := m.store.GetCredential(userID); !ok {
		return nil
	}
	if err := m.store.DeleteCredential(userID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	m.logger.InfoWithContext(ctx, "crm connection removed", "user_id", userID)
	return nil
}

// Status reports the connection as the API exposes it.
func (m *Manager) Status(userID string) models.ConnectionStatus {
	cred, ok := m.store.GetCredential(userID)
	if !ok {
		return models.ConnectionStatus{Connected: false}
	}
	return models.ConnectionStatus{
		Connected: true,
		Expired:   cred.Expired(m.now()),
		LastSync:  cred.LastSyncAt,
		Scope:     cred.Scope,
	}
}

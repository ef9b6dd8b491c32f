package api

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/hubspot"
	"github.com/dealguard/dealguard/internal/models"
	"github.com/dealguard/dealguard/internal/risk"
)

// Outcome codes the OAuth callback hands to the frontend in the redirect
// query string.
const (
	callbackSuccess          = "connected"
	callbackErrDenied        = "oauth_denied"
	callbackErrMissingParams = "missing_params"
	callbackErrInvalidState  = "invalid_state"
	callbackErrExchange      = "token_exchange_failed"
	callbackErrStorage       = "storage_failed"
)

// ConnectResponse carries the consent URL the frontend sends the user to.
type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
}

// handleConnect starts an OAuth authorization for the acting user
func (s *Server) handleConnect(c *gin.Context) {
	userID := UserID(c)

	authURL, err := s.connections.StartAuthorization(userID)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to start authorization",
			"user_id", userID, "error", err.Error())
		s.metrics.RecordError("connect_error", "/hubspot/connect", "POST")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start authorization"})
		return
	}

	c.JSON(http.StatusOK, ConnectResponse{AuthURL: authURL})
}

// handleOAuthCallback completes an authorization and bounces the browser
// back to the frontend with an outcome code
func (s *Server) handleOAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()

	if remoteErr := c.Query("error"); remoteErr != "" {
		s.logger.WarnWithContext(ctx, "authorization denied at provider", "provider_error", remoteErr)
		s.redirectFrontend(c, "error", callbackErrDenied)
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		s.redirectFrontend(c, "error", callbackErrMissingParams)
		return
	}

	userID, err := s.connections.CompleteAuthorization(ctx, state, code)
	if err != nil {
		var invalid *hubspot.InvalidGrantError
		var transient *apperrors.TransientError
		switch {
		case errors.Is(err, apperrors.ErrInvalidState):
			s.logger.WarnWithContext(ctx, "oauth callback with invalid state")
			s.redirectFrontend(c, "error", callbackErrInvalidState)
		case errors.As(err, &invalid) || errors.As(err, &transient):
			s.logger.ErrorWithContext(ctx, "code exchange failed", "user_id", userID, "error", err.Error())
			s.metrics.RecordError("exchange_error", "/oauth/hubspot/callback", "GET")
			s.redirectFrontend(c, "error", callbackErrExchange)
		default:
			s.logger.ErrorWithContext(ctx, "failed to persist credential", "user_id", userID, "error", err.Error())
			s.metrics.RecordError("storage_error", "/oauth/hubspot/callback", "GET")
			s.redirectFrontend(c, "error", callbackErrStorage)
		}
		return
	}

	s.redirectFrontend(c, "success", callbackSuccess)
}

// redirectFrontend sends the browser back to the configured frontend with a
// single outcome parameter. Without a frontend URL the outcome is returned
// as JSON so the flow is still testable end to end.
func (s *Server) redirectFrontend(c *gin.Context, key, value string) {
	if s.config.FrontendURL == "" {
		status := http.StatusOK
		if key == "error" {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{key: value})
		return
	}
	q := url.Values{}
	q.Set(key, value)
	c.Redirect(http.StatusFound, s.config.FrontendURL+"?"+q.Encode())
}

// handleDisconnect removes the acting user's CRM connection
func (s *Server) handleDisconnect(c *gin.Context) {
	userID := UserID(c)

	if err := s.connections.Disconnect(c.Request.Context(), userID); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "disconnect failed",
			"user_id", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"connected": false})
}

// handleSync runs a sync pass for the acting user
func (s *Server) handleSync(c *gin.Context) {
	userID := UserID(c)

	report, err := s.syncer.SyncDeals(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrReconnectRequired) {
			s.metrics.RecordSyncPass("reconnect_required")
			c.JSON(http.StatusUnauthorized, gin.H{
				"connected":          false,
				"reconnect_required": true,
			})
			return
		}
		s.metrics.RecordSyncPass("failed")
		s.metrics.RecordError("sync_error", "/hubspot/sync", "POST")
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync failed"})
		return
	}

	if !report.Connected {
		c.JSON(http.StatusOK, report)
		return
	}

	s.metrics.RecordSyncPass("success")
	s.metrics.RecordSyncedDeals(report.Synced, report.Failed)
	c.JSON(http.StatusOK, report)
}

// handleStatus reports the acting user's connection state
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.connections.Status(UserID(c)))
}

// DealResponse is one synced deal as the API lists it.
type DealResponse struct {
	RemoteID     string              `json:"remote_id"`
	Name         string              `json:"name"`
	Amount       *float64            `json:"amount,omitempty"`
	Stage        string              `json:"stage"`
	StageLabel   string              `json:"stage_label"`
	Metadata     models.DealMetadata `json:"metadata"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	LastSyncedAt time.Time           `json:"last_synced_at"`
}

// handleListDeals returns the acting user's synced deals, riskiest first
func (s *Server) handleListDeals(c *gin.Context) {
	userID := UserID(c)

	deals, err := s.store.ListDeals(userID)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to list deals",
			"user_id", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deals"})
		return
	}

	resp := make([]DealResponse, 0, len(deals))
	for _, d := range deals {
		resp = append(resp, DealResponse{
			RemoteID:     d.RemoteID,
			Name:         d.Name,
			Amount:       d.Amount,
			Stage:        d.Stage,
			StageLabel:   risk.StageLabel(d.Stage),
			Metadata:     d.Metadata,
			CreatedAt:    d.CreatedAt,
			UpdatedAt:    d.UpdatedAt,
			LastSyncedAt: d.LastSyncedAt,
		})
	}
	sort.Slice(resp, func(i, j int) bool {
		if resp[i].Metadata.RiskScore != resp[j].Metadata.RiskScore {
			return resp[i].Metadata.RiskScore > resp[j].Metadata.RiskScore
		}
		return resp[i].Name < resp[j].Name
	})

	c.JSON(http.StatusOK, resp)
}

// ScoreDealRequest is an ad-hoc scoring request. It does not have to
// reference a synced deal; the frontend uses it for what-if evaluation.
type ScoreDealRequest struct {
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Stage        string  `json:"stage"`
	DaysInactive int     `json:"days_inactive"`
	Notes        string  `json:"notes"`
}

// handleScoreDeal scores arbitrary deal input against the user's policy
func (s *Server) handleScoreDeal(c *gin.Context) {
	userID := UserID(c)

	var req ScoreDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := risk.Score(risk.Input{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Stage:        req.Stage,
		DaysInactive: req.DaysInactive,
		Notes:        req.Notes,
	}, s.policyFor(userID))

	s.metrics.RecordDealScored(string(result.Level))
	c.JSON(http.StatusOK, result)
}

// handleGetRiskSettings returns the user's scoring policy, seeding the
// default on first read
func (s *Server) handleGetRiskSettings(c *gin.Context) {
	userID := UserID(c)

	policy, ok := s.store.GetRiskPolicy(userID)
	if !ok {
		policy = models.DefaultRiskPolicy()
		if err := s.store.SetRiskPolicy(userID, policy); err != nil {
			s.logger.WarnWithContext(c.Request.Context(), "failed to seed default risk policy",
				"user_id", userID, "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, policy)
}

// handlePutRiskSettings replaces the user's scoring policy
func (s *Server) handlePutRiskSettings(c *gin.Context) {
	userID := UserID(c)

	var policy models.RiskPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validatePolicy(policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SetRiskPolicy(userID, policy); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to save risk policy",
			"user_id", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, policy)
}

func validatePolicy(p models.RiskPolicy) error {
	if p.StalledThresholdDays < 0 {
		return errors.New("stalled_threshold_days must not be negative")
	}
	if p.HighValueThreshold < 0 {
		return errors.New("high_value_threshold must not be negative")
	}
	for _, w := range []float64{p.WeightAmount, p.WeightStage, p.WeightInactivity, p.WeightNotes} {
		if w < 0 || w > 1 {
			return errors.New("weights must be between 0 and 1")
		}
	}
	for _, kw := range p.RiskKeywords {
		if kw.Word == "" {
			return errors.New("risk keywords must not be empty")
		}
		if kw.Weight < 0 || kw.Weight > 1 {
			return errors.New("keyword weights must be between 0 and 1")
		}
	}
	return nil
}

func (s *Server) policyFor(userID string) models.RiskPolicy {
	if policy, ok := s.store.GetRiskPolicy(userID); ok {
		return policy
	}
	return models.DefaultRiskPolicy()
}

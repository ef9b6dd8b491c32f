package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealguard/dealguard/internal/config"
	apperrors "github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/logging"
)

func newTestClient(serverURL string) *Client {
	return New(config.HubSpotConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8414/oauth/hubspot/callback",
		AuthBaseURL:  serverURL,
		APIBaseURL:   serverURL,
		Scopes:       []string{"crm.objects.deals.read"},
		Timeout:      5 * time.Second,
	}, logging.NewLogger(logging.WithOutput(io.Discard)))
}

func TestRefreshTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    1800,
			Scope:        "crm.objects.deals.read",
		})
	}))
	defer srv.Close()

	tok, err := newTestClient(srv.URL).RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	assert.Equal(t, 1800, tok.ExpiresIn)
}

func TestRefreshTokenInvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"BAD_REFRESH_TOKEN"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RefreshToken(context.Background(), "dead-refresh")
	require.Error(t, err)

	var invalid *InvalidGrantError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
	assert.False(t, apperrors.IsTransient(err))
}

func TestRefreshTokenRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RefreshToken(context.Background(), "refresh")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	var transient *apperrors.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 2*time.Second, transient.RetryAfter)
}

func TestRefreshTokenServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RefreshToken(context.Background(), "refresh")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	var invalid *InvalidGrantError
	assert.False(t, errors.As(err, &invalid))
}

func TestExchangeCodeInvalidCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"BAD_AUTH_CODE"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExchangeCode(context.Background(), "bogus")
	require.Error(t, err)

	var invalid *InvalidGrantError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

func TestAuthorizeURLCarriesState(t *testing.T) {
	c := newTestClient("https://app.example.com")
	u := c.AuthorizeURL("signed-state")
	assert.Contains(t, u, "/oauth/authorize")
	assert.Contains(t, u, "state=signed-state")
	assert.Contains(t, u, "client_id=client-id")
}

func TestListDeals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v3/objects/deals", r.URL.Path)
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Contains(t, r.URL.Query().Get("properties"), "hs_lastmodifieddate")
		assert.Equal(t, "companies,contacts", r.URL.Query().Get("associations"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{
					"id": "9001",
					"properties": {
						"dealname": "Acme renewal",
						"amount": "125000",
						"dealstage": "contractsent",
						"hs_time_in_dealstage": "432000000"
					},
					"associations": {
						"companies": {"results": [{"id": "77", "type": "deal_to_company"}]},
						"contacts": {"results": [{"id": "501", "type": "deal_to_contact"}, {"id": "502", "type": "deal_to_contact"}]}
					}
				}
			]
		}`))
	}))
	defer srv.Close()

	deals, err := newTestClient(srv.URL).ListDeals(context.Background(), "access-token", 25)
	require.NoError(t, err)
	require.Len(t, deals, 1)

	d := deals[0]
	assert.Equal(t, "9001", d.ID)
	assert.Equal(t, "Acme renewal", d.Properties.Name)
	assert.Equal(t, "125000", d.Properties.Amount)
	assert.Equal(t, "432000000", d.Properties.TimeInStage)
	require.Len(t, d.Associations["companies"].Results, 1)
	require.Len(t, d.Associations["contacts"].Results, 2)
	assert.Equal(t, "77", d.Associations["companies"].Results[0].ID)
}

func TestBatchReadCompaniesChunks(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v3/objects/companies/batch/read", r.URL.Path)

		var req batchReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"name"}, req.Properties)

		ids := make([]string, 0, len(req.Inputs))
		resp := batchReadResponse{}
		for _, in := range req.Inputs {
			ids = append(ids, in.ID)
			resp.Results = append(resp.Results, struct {
				ID         string            `json:"id"`
				Properties map[string]string `json:"properties"`
			}{ID: in.ID, Properties: map[string]string{"name": "Company " + in.ID}})
		}
		batches = append(batches, ids)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	ids := []string{"1", "2", "3", "4", "5"}
	companies, err := newTestClient(srv.URL).BatchReadCompanies(context.Background(), "token", ids, 2)
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"1", "2"}, batches[0])
	assert.Equal(t, []string{"3", "4"}, batches[1])
	assert.Equal(t, []string{"5"}, batches[2])

	require.Len(t, companies, 5)
	assert.Equal(t, "Company 3", companies["3"].Name)
}

func TestBatchReadContacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v3/objects/contacts/batch/read", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"id": "501", "properties": {"firstname": "Dana", "lastname": "Reyes", "email": "dana@acme.test"}},
				{"id": "502", "properties": {"firstname": "", "lastname": "", "email": "ops@acme.test"}}
			]
		}`))
	}))
	defer srv.Close()

	contacts, err := newTestClient(srv.URL).BatchReadContacts(context.Background(), "token", []string{"501", "502"}, 100)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Dana Reyes", contacts["501"].DisplayName())
	assert.Equal(t, "ops@acme.test", contacts["502"].DisplayName())
}

func TestListAssociations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v4/objects/deals/9001/associations/contacts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"toObjectId": 501, "associationTypes": [{"category": "HUBSPOT_DEFINED", "typeId": 3, "label": "Primary"}]},
				{"toObjectId": 502, "associationTypes": [{"category": "HUBSPOT_DEFINED", "typeId": 3, "label": null}]}
			]
		}`))
	}))
	defer srv.Close()

	assocs, err := newTestClient(srv.URL).ListAssociations(context.Background(), "token", "9001", "contacts")
	require.NoError(t, err)
	require.Len(t, assocs, 2)
	assert.Equal(t, "501", assocs[0].ToObjectID)
	assert.Equal(t, []string{"Primary"}, assocs[0].Labels)
	assert.Equal(t, "502", assocs[1].ToObjectID)
	assert.Empty(t, assocs[1].Labels)
}

func TestBatchReadFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).BatchReadCompanies(context.Background(), "token", []string{"1"}, 100)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

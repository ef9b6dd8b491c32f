package models

import "time"

// Credential stores one user's OAuth connection to the remote CRM.
// There is at most one Credential per user; the store upserts on user_id.
type Credential struct {
	UserID       string     `json:"user_id"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Scope        string     `json:"scope,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Expired reports whether the access token has passed its expiry.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// ConnectionStatus is the connection summary surfaced to the UI.
type ConnectionStatus struct {
	Connected bool       `json:"connected"`
	Expired   bool       `json:"expired,omitempty"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	Scope     string     `json:"scope,omitempty"`
}

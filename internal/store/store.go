package store

import (
	"time"

	"github.com/dealguard/dealguard/internal/models"
)

// Store is the persistence interface for credentials, synced deals, and
// per-user risk policies.
//
// Credentials are keyed by user id: writes upsert, so a user can never hold
// more than one. Deals are keyed by (user id, remote id): UpsertDeal must
// update in place on conflict, never insert a duplicate; the sync pipeline
// relies on this for idempotence.
type Store interface {
	// Credentials
	GetCredential(userID string) (*models.Credential, bool)
	SetCredential(cred *models.Credential) error
	DeleteCredential(userID string) error
	// TouchCredentialSync records the completion time of a sync pass.
	TouchCredentialSync(userID string, at time.Time) error

	// Deals
	UpsertDeal(deal *models.Deal) error
	GetDeal(userID, remoteID string) (*models.Deal, bool)
	ListDeals(userID string) ([]*models.Deal, error)
	CountDeals(userID string) (int, error)

	// Risk policies
	GetRiskPolicy(userID string) (models.RiskPolicy, bool)
	SetRiskPolicy(userID string, policy models.RiskPolicy) error

	Close() error
}

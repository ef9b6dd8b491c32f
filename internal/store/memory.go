package store

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/dealguard/dealguard/internal/models"
)

// MemoryStore is an in-memory Store used in tests and as a fallback when no
// database path is configured. It mirrors the SQLite store's upsert
// semantics, including (user_id, remote_id) conflict handling.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*models.Credential
	deals       map[string]*models.Deal
	policies    map[string]models.RiskPolicy

	// FailUpsertFor makes UpsertDeal fail for the given remote ids;
	// tests use it to exercise partial-failure reporting.
	FailUpsertFor map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*models.Credential),
		deals:       make(map[string]*models.Deal),
		policies:    make(map[string]models.RiskPolicy),
	}
}

func dealKey(userID, remoteID string) string {
	return userID + "\x00" + remoteID
}

func (m *MemoryStore) GetCredential(userID string) (*models.Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.credentials[userID]
	if !ok {
		return nil, false
	}
	cp := *cred
	return &cp, true
}

func (m *MemoryStore) SetCredential(cred *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.UpdatedAt = time.Now().UTC()
	cp := *cred
	m.credentials[cred.UserID] = &cp
	return nil
}

func (m *MemoryStore) DeleteCredential(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credentials, userID)
	return nil
}

func (m *MemoryStore) TouchCredentialSync(userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cred, ok := m.credentials[userID]; ok {
		t := at.UTC()
		cred.LastSyncAt = &t
	}
	return nil
}

func (m *MemoryStore) UpsertDeal(deal *models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpsertFor[deal.RemoteID] {
		return fmt.Errorf("simulated upsert failure for %s", deal.RemoteID)
	}

	key := dealKey(deal.UserID, deal.RemoteID)
	cp := *deal
	if existing, ok := m.deals[key]; ok {
		cp.CreatedAt = existing.CreatedAt
		if dealContentEqual(existing, &cp) {
			// Unchanged content keeps its update time; only the sync
			// timestamp advances.
			cp.UpdatedAt = existing.UpdatedAt
		}
	}
	m.deals[key] = &cp
	return nil
}

func dealContentEqual(a, b *models.Deal) bool {
	if a.Name != b.Name || a.Stage != b.Stage {
		return false
	}
	if (a.Amount == nil) != (b.Amount == nil) {
		return false
	}
	if a.Amount != nil && *a.Amount != *b.Amount {
		return false
	}
	return reflect.DeepEqual(a.Metadata, b.Metadata)
}

func (m *MemoryStore) GetDeal(userID, remoteID string) (*models.Deal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	deal, ok := m.deals[dealKey(userID, remoteID)]
	if !ok {
		return nil, false
	}
	cp := *deal
	return &cp, true
}

func (m *MemoryStore) ListDeals(userID string) ([]*models.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var deals []*models.Deal
	for _, deal := range m.deals {
		if deal.UserID == userID {
			cp := *deal
			deals = append(deals, &cp)
		}
	}
	return deals, nil
}

func (m *MemoryStore) CountDeals(userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, deal := range m.deals {
		if deal.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetRiskPolicy(userID string) (models.RiskPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.policies[userID]
	return policy, ok
}

func (m *MemoryStore) SetRiskPolicy(userID string, policy models.RiskPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[userID] = policy
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

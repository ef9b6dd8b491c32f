package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dealguard/dealguard/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCredentialLifecycle(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.GetCredential("u-1"); ok {
		t.Fatal("expected no credential before set")
	}

	cred := &models.Credential{
		UserID:       "u-1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(30 * time.Minute).UTC(),
		Scope:        "crm.objects.deals.read",
	}
	if err := s.SetCredential(cred); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}

	got, ok := s.GetCredential("u-1")
	if !ok {
		t.Fatal("expected credential")
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected credential: %+v", got)
	}

	// A second set for the same user replaces, never duplicates.
	cred.AccessToken = "access-2"
	if err := s.SetCredential(cred); err != nil {
		t.Fatalf("SetCredential (update): %v", err)
	}
	got, _ = s.GetCredential("u-1")
	if got.AccessToken != "access-2" {
		t.Fatalf("expected refreshed token, got %s", got.AccessToken)
	}

	if err := s.DeleteCredential("u-1"); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	if _, ok := s.GetCredential("u-1"); ok {
		t.Fatal("expected credential gone after delete")
	}
}

func TestTouchCredentialSync(t *testing.T) {
	s := newTestStore(t)

	cred := &models.Credential{
		UserID:       "u-1",
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := s.SetCredential(cred); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.TouchCredentialSync("u-1", at); err != nil {
		t.Fatalf("TouchCredentialSync: %v", err)
	}

	got, _ := s.GetCredential("u-1")
	if got.LastSyncAt == nil {
		t.Fatal("expected last_sync_at to be set")
	}
	if !got.LastSyncAt.Equal(at) {
		t.Fatalf("expected last_sync_at %v, got %v", at, got.LastSyncAt)
	}
}

func TestUpsertDealIdempotence(t *testing.T) {
	s := newTestStore(t)

	amount := 50000.0
	now := time.Now().UTC().Truncate(time.Second)
	deal := &models.Deal{
		UserID:   "u-1",
		RemoteID: "d-100",
		Name:     "Acme expansion",
		Amount:   &amount,
		Stage:    "negotiation",
		Metadata: models.DealMetadata{
			Company:     "Acme Inc",
			DaysInStage: 4,
			RiskScore:   55,
		},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
	}

	for i := 0; i < 3; i++ {
		if err := s.UpsertDeal(deal); err != nil {
			t.Fatalf("UpsertDeal (pass %d): %v", i, err)
		}
	}

	count, err := s.CountDeals("u-1")
	if err != nil {
		t.Fatalf("CountDeals: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row after repeated upserts, got %d", count)
	}
}

func TestUpsertDealUnchangedDataKeepsUpdatedAt(t *testing.T) {
	s := newTestStore(t)

	t0 := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	deal := &models.Deal{
		UserID:       "u-1",
		RemoteID:     "d-1",
		Name:         "Steady deal",
		Stage:        "proposal",
		CreatedAt:    t0,
		UpdatedAt:    t0,
		LastSyncedAt: t0,
	}
	if err := s.UpsertDeal(deal); err != nil {
		t.Fatalf("UpsertDeal: %v", err)
	}

	// Re-sync with identical content but a later timestamp.
	t1 := t0.Add(time.Hour)
	deal.UpdatedAt = t1
	deal.LastSyncedAt = t1
	if err := s.UpsertDeal(deal); err != nil {
		t.Fatalf("UpsertDeal (re-sync): %v", err)
	}

	got, ok := s.GetDeal("u-1", "d-1")
	if !ok {
		t.Fatal("expected deal")
	}
	if !got.UpdatedAt.Equal(t0) {
		t.Fatalf("updated_at moved on unchanged data: %v != %v", got.UpdatedAt, t0)
	}
	if !got.LastSyncedAt.Equal(t1) {
		t.Fatalf("last_synced_at should advance: %v != %v", got.LastSyncedAt, t1)
	}

	// Now actually change the stage: updated_at must advance.
	t2 := t1.Add(time.Hour)
	deal.Stage = "contractsent"
	deal.UpdatedAt = t2
	deal.LastSyncedAt = t2
	if err := s.UpsertDeal(deal); err != nil {
		t.Fatalf("UpsertDeal (changed): %v", err)
	}
	got, _ = s.GetDeal("u-1", "d-1")
	if !got.UpdatedAt.Equal(t2) {
		t.Fatalf("updated_at should advance on changed data: %v != %v", got.UpdatedAt, t2)
	}
}

func TestDealMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	deal := &models.Deal{
		UserID:   "u-1",
		RemoteID: "d-2",
		Name:     "Metadata deal",
		Stage:    "qualified",
		Metadata: models.DealMetadata{
			Company:      "Globex",
			Contact:      "H. Simpson",
			NextStep:     "Send proposal",
			DaysInStage:  12,
			DaysInactive: 3,
			RiskScore:    72,
			RiskLevel:    "high",
			RiskFactors:  []string{"Inactive for 3 days"},
			Extra:        map[string]string{"closedate": "2026-10-01"},
		},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
	}
	if err := s.UpsertDeal(deal); err != nil {
		t.Fatalf("UpsertDeal: %v", err)
	}

	got, ok := s.GetDeal("u-1", "d-2")
	if !ok {
		t.Fatal("expected deal")
	}
	md := got.Metadata
	if md.Company != "Globex" || md.Contact != "H. Simpson" || md.NextStep != "Send proposal" {
		t.Fatalf("unexpected metadata: %+v", md)
	}
	if md.DaysInStage != 12 || md.DaysInactive != 3 || md.RiskScore != 72 {
		t.Fatalf("unexpected derived fields: %+v", md)
	}
	if md.Extra["closedate"] != "2026-10-01" {
		t.Fatalf("expected extra field preserved, got %+v", md.Extra)
	}
}

func TestListDealsScopedToUser(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	for _, d := range []struct{ user, remote string }{
		{"u-1", "d-1"}, {"u-1", "d-2"}, {"u-2", "d-1"},
	} {
		deal := &models.Deal{
			UserID: d.user, RemoteID: d.remote, Name: "x", Stage: "new",
			CreatedAt: now, UpdatedAt: now, LastSyncedAt: now,
		}
		if err := s.UpsertDeal(deal); err != nil {
			t.Fatalf("UpsertDeal: %v", err)
		}
	}

	deals, err := s.ListDeals("u-1")
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("expected 2 deals for u-1, got %d", len(deals))
	}
}

func TestRiskPolicyRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.GetRiskPolicy("u-1"); ok {
		t.Fatal("expected no policy before set")
	}

	policy := models.DefaultRiskPolicy()
	policy.HighValueThreshold = 250000
	policy.RiskKeywords = []models.RiskKeyword{{Word: "churn", Weight: 0.9}}

	if err := s.SetRiskPolicy("u-1", policy); err != nil {
		t.Fatalf("SetRiskPolicy: %v", err)
	}

	got, ok := s.GetRiskPolicy("u-1")
	if !ok {
		t.Fatal("expected policy")
	}
	if got.HighValueThreshold != 250000 {
		t.Fatalf("unexpected threshold: %v", got.HighValueThreshold)
	}
	if len(got.RiskKeywords) != 1 || got.RiskKeywords[0].Word != "churn" {
		t.Fatalf("unexpected keywords: %+v", got.RiskKeywords)
	}
}

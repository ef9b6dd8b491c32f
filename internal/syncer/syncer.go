// Package syncer pulls deals from the CRM and lands them in the store:
// fetch, association resolution, derived activity metrics, risk scoring,
// idempotent upsert. One sync pass per user runs at a time; repeated passes
// over unchanged remote data leave rows untouched except for the sync
// timestamps.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dealguard/dealguard/internal/config"
	apperrors "github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/hubspot"
	"github.com/dealguard/dealguard/internal/logging"
	"github.com/dealguard/dealguard/internal/models"
	"github.com/dealguard/dealguard/internal/retry"
	"github.com/dealguard/dealguard/internal/risk"
	"github.com/dealguard/dealguard/internal/store"
)

// CRMClient is the subset of the CRM client the sync pipeline needs.
type CRMClient interface {
	ListDeals(ctx context.Context, token string, limit int) ([]hubspot.RemoteDeal, error)
	BatchReadCompanies(ctx context.Context, token string, ids []string, batchSize int) (map[string]hubspot.Company, error)
	BatchReadContacts(ctx context.Context, token string, ids []string, batchSize int) (map[string]hubspot.Contact, error)
	GetCompany(ctx context.Context, token, id string) (hubspot.Company, error)
	GetContact(ctx context.Context, token, id string) (hubspot.Contact, error)
	ListAssociations(ctx context.Context, token, dealID, toObjectType string) ([]hubspot.Association, error)
}

// TokenSource yields a currently valid access token for a user.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, userID string) (string, error)
}

// Notifier receives operator-facing alerts about failed sync passes.
type Notifier interface {
	SyncFailed(ctx context.Context, userID string, err error)
}

// Syncer runs sync passes. Safe for concurrent use; passes for the same
// user are serialized, passes for different users run in parallel.
type Syncer struct {
	store     store.Store
	crm       CRMClient
	tokens    TokenSource
	logger    *logging.Logger
	notifier  Notifier
	pageLimit int
	batchSize int
	retryOpts []retry.Option

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	now func() time.Time
}

// New wires a Syncer from configuration.
func New(st store.Store, crm CRMClient, tokens TokenSource, cfg *config.Config, logger *logging.Logger, notifier Notifier) *Syncer {
	return &Syncer{
		store:     st,
		crm:       crm,
		tokens:    tokens,
		logger:    logger,
		notifier:  notifier,
		pageLimit: cfg.Sync.PageLimit,
		batchSize: cfg.Sync.BatchSize,
		retryOpts: []retry.Option{
			retry.WithMaxRetries(cfg.Sync.MaxRetries),
			retry.WithBaseDelay(cfg.Sync.BaseDelay),
		},
		userLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

func (s *Syncer) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// SyncDeals runs one full sync pass for the user.
//
// A user with no stored credential gets a clean not-connected report rather
// than an error. A credential the remote authority has revoked surfaces
// ErrReconnectRequired after the dead credential is removed. Individual
// deals that fail to persist are counted in the report, they do not abort
// the pass.
func (s *Syncer) SyncDeals(ctx context.Context, userID string) (*models.SyncReport, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := s.store.GetCredential(userID); !ok {
		return &models.SyncReport{Connected: false}, nil
	}

	report, err := s.syncLocked(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrReconnectRequired) {
		s.logger.ErrorWithContext(ctx, "sync pass failed", "user_id", userID, "error", err.Error())
		if s.notifier != nil {
			s.notifier.SyncFailed(ctx, userID, err)
		}
	}
	return report, err
}

func (s *Syncer) syncLocked(ctx context.Context, userID string) (*models.SyncReport, error) {
	token, err := s.tokens.EnsureValidToken(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrReconnectRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("obtain access token: %w", err)
	}

	remote, err := retry.Do(ctx, func(ctx context.Context) ([]hubspot.RemoteDeal, error) {
		return s.crm.ListDeals(ctx, token, s.pageLimit)
	}, s.retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}

	companies, contacts := s.loadAssociatedObjects(ctx, token, remote)

	now := s.now()
	report := &models.SyncReport{Connected: true, Total: len(remote)}
	for _, rd := range remote {
		deal := s.buildDeal(ctx, token, userID, rd, companies, contacts, now)
		if err := s.store.UpsertDeal(deal); err != nil {
			upsertErr := &apperrors.ErrUpsertFailed{RemoteID: rd.ID, Err: err}
			s.logger.ErrorWithContext(ctx, "failed to upsert deal",
				"user_id", userID, "remote_id", rd.ID, "error", upsertErr.Error())
			report.Failed++
			continue
		}
		report.Synced++
	}

	if err := s.store.TouchCredentialSync(userID, now); err != nil {
		s.logger.WarnWithContext(ctx, "failed to record sync time",
			"user_id", userID, "error", err.Error())
	}

	s.logger.InfoWithContext(ctx, "sync pass complete",
		"user_id", userID, "total", report.Total, "synced", report.Synced, "failed", report.Failed)
	return report, nil
}

// loadAssociatedObjects batch-reads every company and contact referenced by
// the fetched deals. A failed batch degrades to per-object reads; objects
// that still cannot be read are simply absent from the maps and the deals
// referencing them keep empty company or contact fields.
func (s *Syncer) loadAssociatedObjects(ctx context.Context, token string, deals []hubspot.RemoteDeal) (map[string]hubspot.Company, map[string]hubspot.Contact) {
	companyIDs := collectIDs(deals, "companies")
	contactIDs := collectIDs(deals, "contacts")

	companies := make(map[string]hubspot.Company)
	if len(companyIDs) > 0 {
		got, err := s.crm.BatchReadCompanies(ctx, token, companyIDs, s.batchSize)
		if err != nil {
			s.logger.WarnWithContext(ctx, "company batch read failed, falling back to single reads",
				"error", err.Error())
			for _, id := range companyIDs {
				c, err := s.crm.GetCompany(ctx, token, id)
				if err != nil {
					s.logger.WarnWithContext(ctx, "company read failed", "company_id", id, "error", err.Error())
					continue
				}
				companies[id] = c
			}
		} else {
			companies = got
		}
	}

	contacts := make(map[string]hubspot.Contact)
	if len(contactIDs) > 0 {
		got, err := s.crm.BatchReadContacts(ctx, token, contactIDs, s.batchSize)
		if err != nil {
			s.logger.WarnWithContext(ctx, "contact batch read failed, falling back to single reads",
				"error", err.Error())
			for _, id := range contactIDs {
				c, err := s.crm.GetContact(ctx, token, id)
				if err != nil {
					s.logger.WarnWithContext(ctx, "contact read failed", "contact_id", id, "error", err.Error())
					continue
				}
				contacts[id] = c
			}
		} else {
			contacts = got
		}
	}

	return companies, contacts
}

func (s *Syncer) buildDeal(ctx context.Context, token, userID string, rd hubspot.RemoteDeal, companies map[string]hubspot.Company, contacts map[string]hubspot.Contact, now time.Time) *models.Deal {
	props := rd.Properties

	name := props.Name
	if name == "" {
		name = "Deal " + rd.ID
	}
	stage := props.Stage
	if stage == "" {
		stage = "unknown"
	}

	var amount *float64
	var amountValue float64
	if props.Amount != "" {
		if v, err := strconv.ParseFloat(props.Amount, 64); err == nil {
			amount = &v
			amountValue = v
		}
	}

	createdAt := parseRemoteTime(props.CreateDate)
	lastModified := parseRemoteTime(props.LastModified)

	daysInStage := daysFromMillis(props.TimeInStage)
	if daysInStage < 0 {
		daysInStage = daysBetween(createdAt, now)
	}
	daysInactive := 0
	if !lastModified.IsZero() {
		daysInactive = daysBetween(lastModified, now)
	}

	companyName := s.resolveCompany(ctx, token, rd, companies)
	contactName := s.resolveContact(ctx, token, rd, contacts)

	result := risk.Score(risk.Input{
		Amount:       amountValue,
		Stage:        stage,
		DaysInactive: daysInactive,
		Notes:        props.Description,
	}, s.policyFor(userID))

	deal := &models.Deal{
		UserID:   userID,
		RemoteID: rd.ID,
		Name:     name,
		Amount:   amount,
		Stage:    stage,
		Metadata: models.DealMetadata{
			Company:      companyName,
			Contact:      contactName,
			NextStep:     props.NextStep,
			DaysInStage:  daysInStage,
			DaysInactive: daysInactive,
			RiskScore:    result.Score,
			RiskLevel:    string(result.Level),
			RiskFactors:  result.Factors,
			Extra:        remoteExtras(props),
		},
		CreatedAt:    createdAt,
		UpdatedAt:    now,
		LastSyncedAt: now,
	}
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	return deal
}

func (s *Syncer) policyFor(userID string) models.RiskPolicy {
	if policy, ok := s.store.GetRiskPolicy(userID); ok {
		return policy
	}
	return models.DefaultRiskPolicy()
}

// remoteExtras keeps the raw remote timestamps alongside the derived
// fields so nothing from the source record is lost.
func remoteExtras(props hubspot.DealProperties) map[string]string {
	extra := make(map[string]string)
	if props.CloseDate != "" {
		extra["closedate"] = props.CloseDate
	}
	if props.CreateDate != "" {
		extra["createdate"] = props.CreateDate
	}
	if props.LastModified != "" {
		extra["hs_lastmodifieddate"] = props.LastModified
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func parseRemoteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// daysFromMillis converts a millisecond duration property to whole days.
// Returns -1 when the property is absent, unparseable, or zero so callers
// can fall back to the deal's age.
func daysFromMillis(s string) int {
	if s == "" {
		return -1
	}
	millis, err := strconv.ParseInt(s, 10, 64)
	if err != nil || millis <= 0 {
		return -1
	}
	return int(millis / (24 * 60 * 60 * 1000))
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() || !from.Before(to) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

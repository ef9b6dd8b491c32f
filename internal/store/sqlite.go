package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dealguard/dealguard/internal/errors"
	"github.com/dealguard/dealguard/internal/logging"
	"github.com/dealguard/dealguard/internal/models"
)

// SQLiteStore is a SQLite-backed Store with WAL mode enabled. It is safe
// for concurrent use.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.NewLogger(),
	}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS credentials (
					user_id TEXT PRIMARY KEY,
					access_token TEXT NOT NULL,
					refresh_token TEXT NOT NULL,
					expires_at DATETIME NOT NULL,
					scope TEXT,
					last_sync_at DATETIME,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS deals (
					user_id TEXT NOT NULL,
					remote_id TEXT NOT NULL,
					name TEXT NOT NULL,
					amount REAL,
					stage TEXT NOT NULL,
					metadata TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					last_synced_at DATETIME NOT NULL,
					PRIMARY KEY (user_id, remote_id)
				);

				CREATE INDEX IF NOT EXISTS idx_deals_user ON deals(user_id);
			`,
		},
		{
			version: 2,
			up: `
				CREATE TABLE IF NOT EXISTS risk_policies (
					user_id TEXT PRIMARY KEY,
					policy TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if err := tx.Commit(); err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Credential operations

func (s *SQLiteStore) GetCredential(userID string) (*models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cred models.Credential
	var lastSync sql.NullTime
	err := s.db.QueryRow(`
		SELECT user_id, access_token, refresh_token, expires_at, scope, last_sync_at, updated_at
		FROM credentials WHERE user_id = ?
	`, userID).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.Scope, &lastSync, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load credential", "error", err.Error(), "user_id", userID)
		return nil, false
	}
	if lastSync.Valid {
		t := lastSync.Time
		cred.LastSyncAt = &t
	}
	return &cred, true
}

// SetCredential inserts or replaces the credential for cred.UserID. The
// user_id primary key guarantees at most one row per user.
func (s *SQLiteStore) SetCredential(cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred.UpdatedAt = time.Now().UTC()
	var lastSync any
	if cred.LastSyncAt != nil {
		lastSync = *cred.LastSyncAt
	}
	_, err := s.db.Exec(`
		INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, scope, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, cred.UserID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Scope, lastSync, cred.UpdatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set credential", Err: err}
	}
	return nil
}

func (s *SQLiteStore) DeleteCredential(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete credential", Err: err}
	}
	return nil
}

func (s *SQLiteStore) TouchCredentialSync(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE credentials SET last_sync_at = ? WHERE user_id = ?`, at.UTC(), userID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "touch credential sync", Err: err}
	}
	return nil
}

// Deal operations

// UpsertDeal writes a deal keyed by (user_id, remote_id). On conflict the
// row is updated in place; updated_at only advances when the synced content
// actually changed, so a sync pass with unchanged remote data is a no-op
// beyond last_synced_at.
func (s *SQLiteStore) UpsertDeal(deal *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata, err := json.Marshal(deal.Metadata)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "marshal deal metadata", Err: err}
	}

	var amount any
	if deal.Amount != nil {
		amount = *deal.Amount
	}

	_, err = s.db.Exec(`
		INSERT INTO deals (user_id, remote_id, name, amount, stage, metadata, created_at, updated_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, remote_id) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			stage = excluded.stage,
			metadata = excluded.metadata,
			last_synced_at = excluded.last_synced_at,
			updated_at = CASE
				WHEN deals.name IS NOT excluded.name
					OR deals.amount IS NOT excluded.amount
					OR deals.stage IS NOT excluded.stage
					OR deals.metadata IS NOT excluded.metadata
				THEN excluded.updated_at
				ELSE deals.updated_at
			END
	`, deal.UserID, deal.RemoteID, deal.Name, amount, deal.Stage, string(metadata),
		deal.CreatedAt, deal.UpdatedAt, deal.LastSyncedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert deal", Err: err}
	}
	return nil
}

func (s *SQLiteStore) GetDeal(userID, remoteID string) (*models.Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deal, err := s.scanDeal(s.db.QueryRow(`
		SELECT user_id, remote_id, name, amount, stage, metadata, created_at, updated_at, last_synced_at
		FROM deals WHERE user_id = ? AND remote_id = ?
	`, userID, remoteID))
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load deal", "error", err.Error(), "user_id", userID, "remote_id", remoteID)
		return nil, false
	}
	return deal, true
}

func (s *SQLiteStore) ListDeals(userID string) ([]*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT user_id, remote_id, name, amount, stage, metadata, created_at, updated_at, last_synced_at
		FROM deals WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list deals", Err: err}
	}
	defer rows.Close()

	var deals []*models.Deal
	for rows.Next() {
		deal, err := s.scanDeal(rows)
		if err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan deal", Err: err}
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list deals", Err: err}
	}
	return deals, nil
}

func (s *SQLiteStore) CountDeals(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM deals WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "count deals", Err: err}
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanDeal(row rowScanner) (*models.Deal, error) {
	var deal models.Deal
	var amount sql.NullFloat64
	var metadata sql.NullString

	err := row.Scan(&deal.UserID, &deal.RemoteID, &deal.Name, &amount, &deal.Stage,
		&metadata, &deal.CreatedAt, &deal.UpdatedAt, &deal.LastSyncedAt)
	if err != nil {
		return nil, err
	}
	if amount.Valid {
		v := amount.Float64
		deal.Amount = &v
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &deal.Metadata); err != nil {
			s.logger.Warn("failed to parse deal metadata", "error", err.Error(), "remote_id", deal.RemoteID)
		}
	}
	return &deal, nil
}

// Risk policy operations

func (s *SQLiteStore) GetRiskPolicy(userID string) (models.RiskPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT policy FROM risk_policies WHERE user_id = ?`, userID).Scan(&data)
	if err != nil {
		return models.RiskPolicy{}, false
	}

	var policy models.RiskPolicy
	if err := json.Unmarshal([]byte(data), &policy); err != nil {
		s.logger.Warn("failed to parse risk policy", "error", err.Error(), "user_id", userID)
		return models.RiskPolicy{}, false
	}
	return policy, true
}

func (s *SQLiteStore) SetRiskPolicy(userID string, policy models.RiskPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(policy)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "marshal risk policy", Err: err}
	}

	_, err = s.db.Exec(`
		INSERT INTO risk_policies (user_id, policy, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			policy = excluded.policy,
			updated_at = excluded.updated_at
	`, userID, string(data), time.Now().UTC())
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set risk policy", Err: err}
	}
	return nil
}

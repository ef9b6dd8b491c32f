package errors

import (
	"errors"
	"fmt"
	"time"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

// Sync and token-lifecycle errors.
//
// These outcomes are deliberately distinct so callers can tell
// "stop everything" from "skip this record":
//
//   - ErrReconnectRequired: the remote authority rejected the refresh token.
//     The credential has been deleted; the user must re-authorize. Never
//     retried automatically.
//   - ErrInvalidState: an authorization callback carried a state parameter
//     that could not be verified. Fails closed; no credential is written.
//   - TransientError: network/5xx/rate-limit from the CRM. Eligible for
//     bounded retry; surfaced only after retries are exhausted.
//   - ErrUpsertFailed: one deal's local write failed. Counted in the sync
//     report; the rest of the batch proceeds.

var (
	// ErrReconnectRequired signals that the stored refresh token was revoked
	// or expired and the connection must be re-established by the user.
	ErrReconnectRequired = errors.New("crm connection invalidated, re-authorization required")

	// ErrInvalidState signals a malformed, forged, or mismatched OAuth state
	// parameter on the authorization callback.
	ErrInvalidState = errors.New("invalid oauth state")
)

// TransientError marks a remote CRM failure that is safe to retry.
type TransientError struct {
	Operation  string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient failure in %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("transient failure in %s: %v", e.Operation, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrUpsertFailed records a single deal whose local write failed during a
// sync pass.
type ErrUpsertFailed struct {
	RemoteID string
	Err      error
}

func (e *ErrUpsertFailed) Error() string {
	return fmt.Sprintf("failed to upsert deal %s: %v", e.RemoteID, e.Err)
}

func (e *ErrUpsertFailed) Unwrap() error {
	return e.Err
}

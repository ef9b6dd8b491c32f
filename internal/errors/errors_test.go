package errors

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigErrors(t *testing.T) {
	notFound := &ErrConfigNotFound{Path: "/tmp/config.yaml"}
	if !strings.Contains(notFound.Error(), "config file not found") {
		t.Fatalf("unexpected error message: %s", notFound.Error())
	}
	if !strings.Contains(notFound.Error(), notFound.Path) {
		t.Fatalf("expected path in error message: %s", notFound.Error())
	}

	base := errors.New("bad yaml")
	parse := &ErrConfigParse{Err: base}
	if !strings.Contains(parse.Error(), "failed to parse YAML") {
		t.Fatalf("unexpected parse message: %s", parse.Error())
	}
	if !errors.Is(parse, base) {
		t.Fatalf("expected unwrap to base error")
	}

	validation := &ErrConfigValidation{Err: base}
	if !strings.Contains(validation.Error(), "config validation failed") {
		t.Fatalf("unexpected validation message: %s", validation.Error())
	}
	if !errors.Is(validation, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestDatabaseErrors(t *testing.T) {
	base := errors.New("db")

	op := &ErrDatabaseOpen{Path: "/tmp/db.sqlite", Err: base}
	if !strings.Contains(op.Error(), "failed to open database") {
		t.Fatalf("unexpected open message: %s", op.Error())
	}
	if !errors.Is(op, base) {
		t.Fatalf("expected unwrap to base error")
	}

	migration := &ErrDatabaseMigration{Version: 2, Err: base}
	if !strings.Contains(migration.Error(), "database migration 2 failed") {
		t.Fatalf("unexpected migration message: %s", migration.Error())
	}
	if !errors.Is(migration, base) {
		t.Fatalf("expected unwrap to base error")
	}

	query := &ErrDatabaseQuery{Operation: "select", Err: base}
	if !strings.Contains(query.Error(), "database query failed") {
		t.Fatalf("unexpected query message: %s", query.Error())
	}
	if !errors.Is(query, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestServerErrors(t *testing.T) {
	base := errors.New("port in use")

	start := &ErrServerStart{Addr: "127.0.0.1:8414", Err: base}
	if !strings.Contains(start.Error(), "failed to start server on 127.0.0.1:8414") {
		t.Fatalf("unexpected start message: %s", start.Error())
	}
	if !errors.Is(start, base) {
		t.Fatalf("expected unwrap to base error")
	}

	shutdown := &ErrServerShutdown{Err: base}
	if !strings.Contains(shutdown.Error(), "server shutdown failed") {
		t.Fatalf("unexpected shutdown message: %s", shutdown.Error())
	}
	if !errors.Is(shutdown, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestFilesystemErrors(t *testing.T) {
	base := errors.New("permission denied")

	dir := &ErrDirectoryCreate{Path: "/data", Err: base}
	if !strings.Contains(dir.Error(), "failed to create directory /data") {
		t.Fatalf("unexpected directory message: %s", dir.Error())
	}
	if !errors.Is(dir, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestLifecycleSentinels(t *testing.T) {
	wrapped := &TransientError{Operation: "refresh", Err: ErrReconnectRequired}
	if !errors.Is(wrapped, ErrReconnectRequired) {
		t.Fatalf("expected wrapped sentinel to match")
	}
	if !strings.Contains(ErrReconnectRequired.Error(), "re-authorization required") {
		t.Fatalf("unexpected sentinel message: %s", ErrReconnectRequired.Error())
	}
	if !strings.Contains(ErrInvalidState.Error(), "invalid oauth state") {
		t.Fatalf("unexpected sentinel message: %s", ErrInvalidState.Error())
	}
	if errors.Is(ErrReconnectRequired, ErrInvalidState) {
		t.Fatalf("sentinels must be distinct")
	}
}

func TestTransientError(t *testing.T) {
	rated := &TransientError{Operation: "list deals", StatusCode: 429, RetryAfter: 2 * time.Second}
	if !strings.Contains(rated.Error(), "transient failure in list deals") {
		t.Fatalf("unexpected message: %s", rated.Error())
	}
	if !strings.Contains(rated.Error(), "429") {
		t.Fatalf("expected status code in message: %s", rated.Error())
	}
	if rated.RetryAfter != 2*time.Second {
		t.Fatalf("unexpected retry-after: %v", rated.RetryAfter)
	}

	base := errors.New("connection reset")
	network := &TransientError{Operation: "batch read", Err: base}
	if !strings.Contains(network.Error(), "connection reset") {
		t.Fatalf("expected cause in message: %s", network.Error())
	}
	if !errors.Is(network, base) {
		t.Fatalf("expected unwrap to base error")
	}

	if !IsTransient(network) {
		t.Fatalf("expected IsTransient to match a TransientError")
	}
	if !IsTransient(&ErrDatabaseQuery{Operation: "upsert", Err: network}) {
		t.Fatalf("expected IsTransient to match through wrapping")
	}
	if IsTransient(base) {
		t.Fatalf("expected IsTransient to reject a plain error")
	}
}

func TestUpsertFailed(t *testing.T) {
	base := errors.New("disk full")

	upsert := &ErrUpsertFailed{RemoteID: "9001", Err: base}
	if !strings.Contains(upsert.Error(), "failed to upsert deal 9001") {
		t.Fatalf("unexpected upsert message: %s", upsert.Error())
	}
	if !errors.Is(upsert, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

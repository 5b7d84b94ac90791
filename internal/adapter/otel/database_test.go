package otel_test

import (
	"path/filepath"
	"testing"

	adapter "github.com/neomorfeo/tenantdb/internal/adapter/otel"

	_ "modernc.org/sqlite"
)

func TestOpenDB(t *testing.T) {
	db, err := adapter.OpenDB(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}

	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("query busy timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestOpenDB_InvalidPath(t *testing.T) {
	if _, err := adapter.OpenDB("/nonexistent/dir/store.db"); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

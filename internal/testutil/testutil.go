// Package testutil provides shared test helpers for setting up case folders,
// databases and loggers.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/casetree/internal/index"
	"github.com/starford/casetree/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "casetree-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCaseFolder creates a temporary case folder with a storage.Provider.
func TestCaseFolder(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteFile writes content to rel inside dir, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ImportedCase writes manifest to dir as "<name>.yaml", syncs it into a new
// test database and returns the database and folder store.
func ImportedCase(t *testing.T, name, manifest string) (*index.DB, storage.Provider) {
	t.Helper()
	dir, store := TestCaseFolder(t)
	WriteFile(t, dir, name+".yaml", manifest)
	db := TestDB(t)
	if _, err := index.ImportManifest(db, store, name+".yaml"); err != nil {
		t.Fatalf("import %s: %v", name, err)
	}
	return db, store
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a debug-level logger that writes through t.Log.
func NewTestLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

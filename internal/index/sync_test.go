package index

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/checksum"
	"github.com/starford/casetree/internal/storage"
)

const acmeManifest = `case: acme
records:
  - id: box
    kind: container
    physical: true
    children:
      - id: m1
        kind: email
        file: mail/m1.eml
      - id: m2
        kind: email
        file: mail/m2.eml
  - id: memo
    kind: document
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func caseFolder(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportManifest_ComputesFileDigests(t *testing.T) {
	dir, store := caseFolder(t)
	db := testDB(t)
	writeFile(t, dir, "acme.yaml", acmeManifest)
	writeFile(t, dir, "mail/m1.eml", "same body")
	writeFile(t, dir, "mail/m2.eml", "same body")

	id, err := ImportManifest(db, store, "acme.yaml")
	if err != nil {
		t.Fatalf("ImportManifest: %v", err)
	}
	if id != "acme" {
		t.Fatalf("case = %q", id)
	}

	tree, err := db.Snapshot("acme")
	if err != nil {
		t.Fatal(err)
	}
	m1, _ := tree.Get("m1")
	m2, _ := tree.Get("m2")
	want := checksum.Sum([]byte("same body"))
	if m1.Digest != want || m2.Digest != want {
		t.Errorf("digests = %q, %q; want %q", m1.Digest, m2.Digest, want)
	}
	memo, _ := tree.Get("memo")
	if memo.HasDigest() {
		t.Error("memo should have no digest")
	}
}

func TestImportManifest_MissingFile(t *testing.T) {
	dir, store := caseFolder(t)
	db := testDB(t)
	writeFile(t, dir, "acme.yaml", acmeManifest)

	if _, err := ImportManifest(db, store, "acme.yaml"); err == nil {
		t.Fatal("expected error for missing record file")
	}
	if _, err := db.GetCase("acme"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("case stored despite failed import: %v", err)
	}
}

func TestImportManifest_DuplicateCaseConflict(t *testing.T) {
	dir, store := caseFolder(t)
	db := testDB(t)
	writeFile(t, dir, "a.yaml", "case: acme\nrecords:\n  - id: x\n")
	writeFile(t, dir, "b.yaml", "case: acme\nrecords:\n  - id: y\n")

	if _, err := ImportManifest(db, store, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	_, err := ImportManifest(db, store, "b.yaml")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestImportManifest_RenamedCaseDropsOld(t *testing.T) {
	dir, store := caseFolder(t)
	db := testDB(t)
	writeFile(t, dir, "a.yaml", "case: old\nrecords:\n  - id: x\n")
	if _, err := ImportManifest(db, store, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "a.yaml", "case: new\nrecords:\n  - id: x\n")
	if _, err := ImportManifest(db, store, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetCase("old"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("old case still present: %v", err)
	}
}

func TestSync_ImportsAndRemoves(t *testing.T) {
	dir, store := caseFolder(t)
	db := testDB(t)
	writeFile(t, dir, "one.yaml", "case: one\nrecords:\n  - id: a\n")
	writeFile(t, dir, "nested/two.yml", "case: two\nrecords:\n  - id: b\n")
	writeFile(t, dir, "broken.yaml", "case: [\n")
	writeFile(t, dir, "notes.txt", "ignored")

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	cases, _ := db.Cases()
	if len(cases) != 2 {
		t.Fatalf("cases = %+v, want one and two", cases)
	}

	if err := os.Remove(filepath.Join(dir, "one.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetCase("one"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale case not removed: %v", err)
	}
}

func TestSync_SkipsUnchanged(t *testing.T) {
	dir, store := caseFolder(t)
	db := testDB(t)
	writeFile(t, dir, "one.yaml", "case: one\nrecords:\n  - id: a\n")
	_ = Sync(db, store, quietLogger())
	before, _ := db.GetCase("one")

	var events []string
	if err := reconcile(db, store, quietLogger(), func(kind, id string) {
		events = append(events, kind+":"+id)
	}); err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("unchanged manifest re-imported: %v", events)
	}
	after, _ := db.GetCase("one")
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("updated_at changed for unchanged manifest")
	}
}

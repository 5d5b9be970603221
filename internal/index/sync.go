package index

import (
	"fmt"
	"log/slog"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/checksum"
	"github.com/starford/casetree/internal/manifest"
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/storage"
)

// Sync walks the case folder and brings the store up to date:
//   - new/changed manifests are parsed and imported
//   - cases whose manifest was removed from disk are deleted
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	return reconcile(db, store, logger, nil)
}

func reconcile(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	cases, err := db.Cases()
	if err != nil {
		return err
	}
	byManifest := make(map[string]CaseRow, len(cases))
	for _, c := range cases {
		byManifest[c.Manifest] = c
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	// Remove stale cases first so a renamed manifest can take its case over.
	for p, c := range byManifest {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteCase(c.ID); err != nil {
			logger.Warn("sync: delete failed", slog.String("case", c.ID), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("case", c.ID), slog.String("manifest", p))
		if cb != nil {
			cb(EventRemoved, c.ID)
		}
	}

	for _, m := range metas {
		if c, ok := byManifest[m.Path]; ok && c.Checksum == m.Checksum {
			continue
		}

		caseID, err := ImportManifest(db, store, m.Path)
		if err != nil {
			logger.Warn("sync: import failed", slog.String("manifest", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: imported", slog.String("manifest", m.Path), slog.String("case", caseID))
		if cb != nil {
			cb(EventImported, caseID)
		}
	}

	return nil
}

// ImportManifest parses the manifest at path, fills in digests for records
// that reference a file, verifies the hierarchy and replaces the case in
// the store. It returns the imported case id.
func ImportManifest(db CorpusIndex, store storage.Provider, path string) (string, error) {
	data, err := store.Read(path)
	if err != nil {
		return "", err
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return "", err
	}
	entries, err := m.Flatten()
	if err != nil {
		return "", err
	}
	for i := range entries {
		e := &entries[i]
		if e.Digest != "" || e.File == "" {
			continue
		}
		digest, err := fileDigest(store, e.File)
		if err != nil {
			return "", fmt.Errorf("index: digest %s for %s: %w", e.File, e.ID, err)
		}
		e.Digest = digest
	}

	specs := manifest.Specs(entries)
	if _, err := models.NewTree(specs); err != nil {
		return "", fmt.Errorf("index: manifest %s: %w", path, err)
	}
	if owner, err := db.GetCase(m.Case); err == nil && owner.Manifest != path {
		return "", fmt.Errorf("index: case %q already imported from %s: %w", m.Case, owner.Manifest, apperr.ErrConflict)
	}
	// A manifest whose case id changed leaves the old case behind.
	if prev, err := db.CaseByManifest(path); err == nil && prev.ID != m.Case {
		if err := db.DeleteCase(prev.ID); err != nil {
			return "", err
		}
	}
	row := CaseRow{ID: m.Case, Manifest: path, Checksum: checksum.Sum(data)}
	if err := db.ReplaceCase(row, specs); err != nil {
		return "", err
	}
	return m.Case, nil
}

func fileDigest(store storage.Provider, path string) (string, error) {
	rc, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return checksum.SumReader(rc)
}

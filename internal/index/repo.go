package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/models"
)

// CaseRow represents a row in the cases table.
type CaseRow struct {
	ID        string
	Manifest  string
	Checksum  string
	UpdatedAt time.Time
}

// ReplaceCase stores a case and swaps its full record set within a
// transaction.
func (db *DB) ReplaceCase(c CaseRow, specs []models.Spec) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO cases (id, manifest, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			manifest   = excluded.manifest,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, c.ID, c.Manifest, c.Checksum, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert case: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM records WHERE case_id = ?`, c.ID); err != nil {
		return fmt.Errorf("index: clear records: %w", err)
	}
	if len(specs) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO records (case_id, id, parent_id, ordinal, name, kind, physical, digest)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare record insert: %w", err)
		}
		defer stmt.Close()
		for _, s := range specs {
			if _, err := stmt.Exec(c.ID, s.ID, s.ParentID, s.Ordinal, s.Name, s.Kind, s.Physical, s.Digest); err != nil {
				return fmt.Errorf("index: insert record %s: %w", s.ID, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteCase removes a case and all of its records.
func (db *DB) DeleteCase(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM records WHERE case_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete case: %w", err)
	}
	return tx.Commit()
}

// GetCase returns a case row, or an error wrapping apperr.ErrNotFound.
func (db *DB) GetCase(id string) (*CaseRow, error) {
	var c CaseRow
	err := db.conn.QueryRow(`SELECT id, manifest, checksum, updated_at FROM cases WHERE id = ?`, id).
		Scan(&c.ID, &c.Manifest, &c.Checksum, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: case %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get case: %w", err)
	}
	return &c, nil
}

// CaseByManifest returns the case imported from the given manifest path.
func (db *DB) CaseByManifest(path string) (*CaseRow, error) {
	var c CaseRow
	err := db.conn.QueryRow(`SELECT id, manifest, checksum, updated_at FROM cases WHERE manifest = ?`, path).
		Scan(&c.ID, &c.Manifest, &c.Checksum, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: manifest %q: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: case by manifest: %w", err)
	}
	return &c, nil
}

// Cases returns every stored case ordered by id.
func (db *DB) Cases() ([]CaseRow, error) {
	rows, err := db.conn.Query(`SELECT id, manifest, checksum, updated_at FROM cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: list cases: %w", err)
	}
	defer rows.Close()

	var out []CaseRow
	for rows.Next() {
		var c CaseRow
		if err := rows.Scan(&c.ID, &c.Manifest, &c.Checksum, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Specs returns the stored records of a case.
func (db *DB) Specs(caseID string) ([]models.Spec, error) {
	rows, err := db.conn.Query(`
		SELECT id, parent_id, ordinal, name, kind, physical, digest
		FROM records
		WHERE case_id = ?
		ORDER BY parent_id, ordinal, id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("index: specs: %w", err)
	}
	defer rows.Close()

	var out []models.Spec
	for rows.Next() {
		var s models.Spec
		if err := rows.Scan(&s.ID, &s.ParentID, &s.Ordinal, &s.Name, &s.Kind, &s.Physical, &s.Digest); err != nil {
			return nil, fmt.Errorf("index: scan record: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Snapshot loads a case into an immutable tree.
func (db *DB) Snapshot(caseID string) (*models.Tree, error) {
	if _, err := db.GetCase(caseID); err != nil {
		return nil, err
	}
	specs, err := db.Specs(caseID)
	if err != nil {
		return nil, err
	}
	tree, err := models.NewTree(specs)
	if err != nil {
		return nil, fmt.Errorf("index: snapshot %s: %w", caseID, err)
	}
	return tree, nil
}

// DigestGroups returns record ids grouped by digest for digests shared by at
// least minSize records.
func (db *DB) DigestGroups(caseID string, minSize int) (map[string][]string, error) {
	if minSize < 1 {
		minSize = 1
	}
	rows, err := db.conn.Query(`
		SELECT digest, id
		FROM records
		WHERE case_id = ? AND digest != '' AND digest IN (
			SELECT digest FROM records
			WHERE case_id = ? AND digest != ''
			GROUP BY digest
			HAVING COUNT(*) >= ?
		)
		ORDER BY digest, id
	`, caseID, caseID, minSize)
	if err != nil {
		return nil, fmt.Errorf("index: digest groups: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var digest, id string
		if err := rows.Scan(&digest, &id); err != nil {
			return nil, err
		}
		out[digest] = append(out[digest], id)
	}
	return out, rows.Err()
}

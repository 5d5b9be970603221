package index

import "github.com/starford/casetree/internal/models"

// CorpusIndex defines the corpus store operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type CorpusIndex interface {
	ReplaceCase(c CaseRow, specs []models.Spec) error
	DeleteCase(id string) error
	GetCase(id string) (*CaseRow, error)
	CaseByManifest(path string) (*CaseRow, error)
	Cases() ([]CaseRow, error)
	Specs(caseID string) ([]models.Spec, error)
	Snapshot(caseID string) (*models.Tree, error)
	DigestGroups(caseID string, minSize int) (map[string][]string, error)
	Close() error
}

// Verify *DB satisfies CorpusIndex at compile time.
var _ CorpusIndex = (*DB)(nil)

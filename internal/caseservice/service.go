// Package caseservice runs the structural algorithms against cases held in
// the corpus store. It is the single entry point used by the HTTP API, the
// MCP tools and the CLI.
package caseservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/casetree/internal/ancestor"
	"github.com/starford/casetree/internal/apperr"
	"github.com/starford/casetree/internal/checksum"
	"github.com/starford/casetree/internal/dedupe"
	"github.com/starford/casetree/internal/index"
	"github.com/starford/casetree/internal/manifest"
	"github.com/starford/casetree/internal/models"
	"github.com/starford/casetree/internal/neighbor"
	"github.com/starford/casetree/internal/partition"
	"github.com/starford/casetree/internal/storage"
)

// Defaults are applied when a caller leaves an option unset.
type Defaults struct {
	ChunkSize   int
	ItemsBefore int
	ItemsAfter  int
	TieBreaker  string
}

// RecordView is the wire representation of a record.
type RecordView struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Physical bool   `json:"physical"`
	Position string `json:"position"`
	Digest   string `json:"digest,omitempty"`
}

// RecordDetail adds hierarchy context to a RecordView.
type RecordDetail struct {
	RecordView
	Parent   string   `json:"parent,omitempty"`
	Family   string   `json:"family"`
	Path     []string `json:"path"`
	Children []string `json:"children"`
}

// CaseSummary is a stored case.
type CaseSummary struct {
	ID        string    `json:"id"`
	Manifest  string    `json:"manifest"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AncestorResult holds the union of matched ancestors and, per requested
// record, the id of its nearest match (records without one are omitted).
type AncestorResult struct {
	Ancestors []RecordView      `json:"ancestors"`
	Nearest   map[string]string `json:"nearest"`
}

// Chunk is one partition batch.
type Chunk struct {
	BatchID string       `json:"batch_id"`
	Index   int          `json:"index"`
	Records []RecordView `json:"records"`
}

// ChunkSink receives chunks as they are produced.
type ChunkSink func(Chunk) error

// DedupeResult lists survivors in input order.
type DedupeResult struct {
	TieBreaker string       `json:"tie_breaker"`
	Survivors  []RecordView `json:"survivors"`
	Removed    int          `json:"removed"`
}

type cachedTree struct {
	checksum string
	tree     *models.Tree
}

// Service coordinates the case folder, the corpus store and the algorithms.
type Service struct {
	store    storage.Provider
	db       index.CorpusIndex
	logger   *slog.Logger
	defaults Defaults

	mu       sync.Mutex
	cache    map[string]cachedTree
	onChange func(kind, caseID string)
}

// New creates a case service.
func New(store storage.Provider, db index.CorpusIndex, logger *slog.Logger, defaults Defaults) *Service {
	return &Service{
		store:    store,
		db:       db,
		logger:   logger,
		defaults: defaults,
		cache:    make(map[string]cachedTree),
	}
}

// Defaults returns the configured defaults.
func (s *Service) Defaults() Defaults { return s.defaults }

// Cases lists the stored cases.
func (s *Service) Cases(_ context.Context) ([]CaseSummary, error) {
	rows, err := s.db.Cases()
	if err != nil {
		return nil, err
	}
	out := make([]CaseSummary, len(rows))
	for i, r := range rows {
		out[i] = CaseSummary{ID: r.ID, Manifest: r.Manifest, Checksum: r.Checksum, UpdatedAt: r.UpdatedAt}
	}
	return out, nil
}

// Snapshot returns the case tree, reusing the cached copy while the stored
// checksum is unchanged.
func (s *Service) Snapshot(_ context.Context, caseID string) (*models.Tree, error) {
	row, err := s.db.GetCase(caseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	c, ok := s.cache[caseID]
	s.mu.Unlock()
	if ok && c.checksum == row.Checksum {
		return c.tree, nil
	}

	tree, err := s.db.Snapshot(caseID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[caseID] = cachedTree{checksum: row.Checksum, tree: tree}
	s.mu.Unlock()
	return tree, nil
}

// OnChange registers fn to be told about every imported or removed case,
// whether the change came from this service or from CaseChanged.
func (s *Service) OnChange(fn func(kind, caseID string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// CaseChanged drops the cached tree of a case and reports the change. kind
// is index.EventImported or index.EventRemoved.
func (s *Service) CaseChanged(kind, caseID string) {
	s.mu.Lock()
	delete(s.cache, caseID)
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(kind, caseID)
	}
}

// Record returns a single record with its path.
func (s *Service) Record(ctx context.Context, caseID, id string) (*RecordDetail, error) {
	tree, err := s.Snapshot(ctx, caseID)
	if err != nil {
		return nil, err
	}
	r, ok := tree.Get(id)
	if !ok {
		return nil, apperr.Wrapf(apperr.ErrNotFound, "caseservice: record %q", id)
	}

	d := &RecordDetail{
		RecordView: view(r),
		Family:     r.Family().ID,
		Path:       ids(r.Path()),
		Children:   ids(r.Children()),
	}
	if p := r.Parent(); p != nil {
		d.Parent = p.ID
	}
	return d, nil
}

// NearestAncestors resolves the nearest ancestor matching the named predicate
// for each selected record. An empty selection means the whole case.
func (s *Service) NearestAncestors(ctx context.Context, caseID string, recordIDs []string, predicate string) (*AncestorResult, error) {
	pred, err := ancestor.PredicateByName(predicate)
	if err != nil {
		return nil, err
	}
	records, err := s.selection(ctx, caseID, recordIDs)
	if err != nil {
		return nil, err
	}

	found, err := ancestor.FindNearestAll(ctx, records, pred)
	if err != nil {
		return nil, err
	}

	nearest := make(map[string]string)
	for _, r := range records {
		if a := ancestor.FindNearest(r, pred); a != nil {
			nearest[r.ID] = a.ID
		}
	}
	return &AncestorResult{Ancestors: views(found), Nearest: nearest}, nil
}

// Partition splits the selected records into family-preserving chunks of
// at least size records and hands each to sink. All chunks of one call share
// a batch id, which is returned. An empty selection means the whole case.
func (s *Service) Partition(ctx context.Context, caseID string, recordIDs []string, size int, sink ChunkSink) (string, error) {
	records, err := s.selection(ctx, caseID, recordIDs)
	if err != nil {
		return "", err
	}

	batchID := uuid.NewString()
	n := 0
	err = partition.Partition(records, size, func(chunk []*models.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := Chunk{BatchID: batchID, Index: n, Records: views(chunk)}
		n++
		return sink(c)
	})
	if err != nil {
		return batchID, err
	}

	s.logger.Debug("caseservice: partitioned",
		slog.String("case", caseID),
		slog.String("batch", batchID),
		slog.Int("records", len(records)),
		slog.Int("chunks", n))
	return batchID, nil
}

// Deduplicate keeps one record per digest using the named tie-breaker (the
// configured default when empty).
func (s *Service) Deduplicate(ctx context.Context, caseID string, recordIDs []string, tieBreaker string) (*DedupeResult, error) {
	if tieBreaker == "" {
		tieBreaker = s.defaults.TieBreaker
	}
	tb, err := dedupe.TieBreakerByName(tieBreaker)
	if err != nil {
		return nil, err
	}
	records, err := s.selection(ctx, caseID, recordIDs)
	if err != nil {
		return nil, err
	}

	survivors, err := dedupe.Deduplicate(records, tb)
	if err != nil {
		return nil, err
	}
	if tieBreaker == "" {
		tieBreaker = dedupe.Earliest
	}
	return &DedupeResult{
		TieBreaker: tieBreaker,
		Survivors:  views(survivors),
		Removed:    distinct(records) - len(survivors),
	}, nil
}

// Neighbors expands the selected records by up to before/after siblings on
// each side.
func (s *Service) Neighbors(ctx context.Context, caseID string, recordIDs []string, before, after int) ([]RecordView, error) {
	if len(recordIDs) == 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "caseservice: neighbors needs at least one record id")
	}
	tree, err := s.Snapshot(ctx, caseID)
	if err != nil {
		return nil, err
	}
	records, err := tree.Lookup(recordIDs)
	if err != nil {
		return nil, err
	}
	out, err := neighbor.Expand(tree, records, before, after)
	if err != nil {
		return nil, err
	}
	return views(out), nil
}

// DigestGroups returns record ids sharing a digest, for digests held by at
// least minSize records.
func (s *Service) DigestGroups(_ context.Context, caseID string, minSize int) (map[string][]string, error) {
	if _, err := s.db.GetCase(caseID); err != nil {
		return nil, err
	}
	return s.db.DigestGroups(caseID, minSize)
}

// PutManifest writes a manifest into the case folder and imports it. When
// ifMatch is set it must equal the checksum of the manifest being replaced.
func (s *Service) PutManifest(_ context.Context, path string, content []byte, ifMatch string) (string, error) {
	if !storage.IsManifest(path) {
		return "", apperr.Wrapf(apperr.ErrInvalidInput, "caseservice: %q is not a manifest path", path)
	}
	m, err := manifest.Parse(content)
	if err != nil {
		return "", apperr.Mark(apperr.Wrap(err, "caseservice: parse manifest"), apperr.ErrInvalidInput)
	}
	if _, err := m.Flatten(); err != nil {
		return "", apperr.Mark(apperr.Wrap(err, "caseservice: validate manifest"), apperr.ErrInvalidInput)
	}

	existing, err := s.store.Read(path)
	found := err == nil
	switch {
	case found:
		if ifMatch != "" && ifMatch != checksum.Sum(existing) {
			return "", apperr.Wrapf(apperr.ErrConflict, "caseservice: manifest %q changed", path)
		}
	case errors.Is(err, os.ErrNotExist):
		if ifMatch != "" {
			return "", apperr.Wrapf(apperr.ErrNotFound, "caseservice: manifest %q", path)
		}
	default:
		return "", err
	}

	var previousCase string
	if row, err := s.db.CaseByManifest(path); err == nil {
		previousCase = row.ID
	}

	if err := s.store.Write(path, content); err != nil {
		return "", err
	}
	caseID, err := index.ImportManifest(s.db, s.store, path)
	if err != nil {
		s.restore(path, existing, found)
		return "", err
	}
	if previousCase != "" && previousCase != caseID {
		s.CaseChanged(index.EventRemoved, previousCase)
	}
	s.CaseChanged(index.EventImported, caseID)
	s.logger.Info("caseservice: manifest stored", slog.String("manifest", path), slog.String("case", caseID))
	return caseID, nil
}

// DeleteCase removes a case and its manifest.
func (s *Service) DeleteCase(_ context.Context, caseID string) error {
	row, err := s.db.GetCase(caseID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(row.Manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.db.DeleteCase(caseID); err != nil {
		return err
	}
	s.CaseChanged(index.EventRemoved, caseID)
	return nil
}

// restore puts the case folder back after a failed import.
func (s *Service) restore(path string, previous []byte, existed bool) {
	var err error
	if existed {
		err = s.store.Write(path, previous)
	} else {
		err = s.store.Delete(path)
	}
	if err != nil {
		s.logger.Warn("caseservice: restore manifest failed", slog.String("manifest", path), slog.String("error", err.Error()))
	}
}

func (s *Service) selection(ctx context.Context, caseID string, recordIDs []string) ([]*models.Record, error) {
	tree, err := s.Snapshot(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(recordIDs) == 0 {
		return tree.Records(), nil
	}
	return tree.Lookup(recordIDs)
}

func view(r *models.Record) RecordView {
	return RecordView{
		ID:       r.ID,
		Name:     r.Name,
		Kind:     r.Kind,
		Physical: r.Physical,
		Position: r.Position.String(),
		Digest:   r.Digest,
	}
}

func views(records []*models.Record) []RecordView {
	out := make([]RecordView, len(records))
	for i, r := range records {
		out[i] = view(r)
	}
	return out
}

func ids(records []*models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func distinct(records []*models.Record) int {
	seen := make(map[*models.Record]struct{}, len(records))
	for _, r := range records {
		seen[r] = struct{}{}
	}
	return len(seen)
}

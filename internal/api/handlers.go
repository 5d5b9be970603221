package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casetree/internal/caseservice"
	"github.com/starford/casetree/internal/checksum"
)

// Handler holds API route handlers.
type Handler struct {
	svc *caseservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *caseservice.Service) *Handler {
	return &Handler{svc: svc}
}

// manifestPath extracts the manifest path from the URL (everything after
// /manifests/). Supports encoded slashes (e.g. custodians%2Facme.yaml).
func manifestPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListCases handles GET /cases.
//
//	@Summary		List imported cases
//	@Tags			cases
//	@Produce		json
//	@Success		200	{object}	CasesResponse
//	@Security		BearerAuth
//	@Router			/cases [get]
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.svc.Cases(r.Context())
	if err != nil {
		writeError(w, "list cases", err)
		return
	}
	if cases == nil {
		cases = []caseservice.CaseSummary{}
	}
	writeJSON(w, http.StatusOK, CasesResponse{Cases: cases})
}

// GetRecord handles GET /cases/{case}/records/{id}.
//
//	@Summary		Get a record with its path
//	@Tags			records
//	@Produce		json
//	@Param			case	path		string	true	"Case id"
//	@Param			id		path		string	true	"Record id"
//	@Success		200		{object}	caseservice.RecordDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case}/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Record(r.Context(), chi.URLParam(r, "case"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Ancestors handles POST /cases/{case}/ancestors.
//
//	@Summary		Resolve nearest matching ancestors
//	@Tags			algorithms
//	@Accept			json
//	@Produce		json
//	@Param			case	path		string				true	"Case id"
//	@Param			body	body		AncestorsRequest	false	"Selection and predicate"
//	@Success		200		{object}	caseservice.AncestorResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case}/ancestors [post]
func (h *Handler) Ancestors(w http.ResponseWriter, r *http.Request) {
	var req AncestorsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.NearestAncestors(r.Context(), chi.URLParam(r, "case"), req.IDs, req.Predicate)
	if err != nil {
		writeError(w, "ancestors", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Partition handles POST /cases/{case}/partition. The response is NDJSON,
// one chunk per line, written as chunks are produced. An error after the
// first chunk is reported as a final {"error": ...} line.
//
//	@Summary		Partition records into family-preserving chunks
//	@Tags			algorithms
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Param			case	path		string				true	"Case id"
//	@Param			body	body		PartitionRequest	false	"Selection and chunk size"
//	@Success		200		{object}	caseservice.Chunk
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case}/partition [post]
func (h *Handler) Partition(w http.ResponseWriter, r *http.Request) {
	var req PartitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	size := h.svc.Defaults().ChunkSize
	if req.ChunkSize != nil {
		size = *req.ChunkSize
	}

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}

	caseID := chi.URLParam(r, "case")
	_, err := h.svc.Partition(r.Context(), caseID, req.IDs, size, func(c caseservice.Chunk) error {
		start()
		if err := enc.Encode(c); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if !started {
			writeError(w, "partition", err)
			return
		}
		slog.Warn("partition stream aborted", slog.String("case", caseID), slog.String("error", err.Error()))
		_ = enc.Encode(errorBody(err.Error()))
		return
	}
	start()
}

// Dedupe handles POST /cases/{case}/dedupe.
//
//	@Summary		Keep one record per digest
//	@Tags			algorithms
//	@Accept			json
//	@Produce		json
//	@Param			case	path		string			true	"Case id"
//	@Param			body	body		DedupeRequest	false	"Selection and tie-breaker"
//	@Success		200		{object}	caseservice.DedupeResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case}/dedupe [post]
func (h *Handler) Dedupe(w http.ResponseWriter, r *http.Request) {
	var req DedupeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Deduplicate(r.Context(), chi.URLParam(r, "case"), req.IDs, req.TieBreaker)
	if err != nil {
		writeError(w, "dedupe", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Neighbors handles POST /cases/{case}/neighbors.
//
//	@Summary		Expand a selection with neighbouring siblings
//	@Tags			algorithms
//	@Accept			json
//	@Produce		json
//	@Param			case	path		string				true	"Case id"
//	@Param			body	body		NeighborsRequest	true	"Selection and window"
//	@Success		200		{object}	NeighborsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case}/neighbors [post]
func (h *Handler) Neighbors(w http.ResponseWriter, r *http.Request) {
	var req NeighborsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d := h.svc.Defaults()
	before, after := d.ItemsBefore, d.ItemsAfter
	if req.Before != nil {
		before = *req.Before
	}
	if req.After != nil {
		after = *req.After
	}
	records, err := h.svc.Neighbors(r.Context(), chi.URLParam(r, "case"), req.IDs, before, after)
	if err != nil {
		writeError(w, "neighbors", err)
		return
	}
	writeJSON(w, http.StatusOK, NeighborsResponse{Records: records})
}

// DigestGroups handles GET /cases/{case}/digests.
//
//	@Summary		List digests shared by several records
//	@Tags			records
//	@Produce		json
//	@Param			case	path		string	true	"Case id"
//	@Param			min		query		int		false	"Minimum group size (default 2)"
//	@Success		200		{object}	DigestGroupsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case}/digests [get]
func (h *Handler) DigestGroups(w http.ResponseWriter, r *http.Request) {
	minSize := 2
	if v := r.URL.Query().Get("min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("min must be an integer"))
			return
		}
		minSize = n
	}
	groups, err := h.svc.DigestGroups(r.Context(), chi.URLParam(r, "case"), minSize)
	if err != nil {
		writeError(w, "digest groups", err)
		return
	}
	writeJSON(w, http.StatusOK, DigestGroupsResponse{Groups: groups})
}

// DeleteCase handles DELETE /cases/{case}.
//
//	@Summary		Delete a case and its manifest
//	@Tags			cases
//	@Param			case	path	string	true	"Case id"
//	@Success		204		"Case deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cases/{case} [delete]
func (h *Handler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCase(r.Context(), chi.URLParam(r, "case")); err != nil {
		writeError(w, "delete case", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutManifest handles PUT /manifests/*. The body is the raw YAML manifest.
//
//	@Summary		Upload a case manifest with optimistic concurrency
//	@Tags			cases
//	@Accept			application/yaml
//	@Produce		json
//	@Param			path		path		string	true	"Manifest path"
//	@Param			If-Match	header		string	false	"SHA-256 checksum of the manifest being replaced"
//	@Success		200			{object}	ManifestResponse
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/manifests/{path} [put]
func (h *Handler) PutManifest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := manifestPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	caseID, err := h.svc.PutManifest(r.Context(), path, body, ifMatch)
	if err != nil {
		writeError(w, "put manifest", err)
		return
	}
	sum := checksum.Sum(body)
	w.Header().Set("ETag", `"`+sum+`"`)
	writeJSON(w, http.StatusOK, ManifestResponse{Case: caseID, Manifest: path, Checksum: sum})
}

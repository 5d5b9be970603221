package api

import "github.com/starford/casetree/internal/caseservice"

// AncestorsRequest is the body of POST /cases/{case}/ancestors.
type AncestorsRequest struct {
	IDs       []string `json:"ids" example:"att-1,att-2"`
	Predicate string   `json:"predicate,omitempty" example:"container"`
}

// PartitionRequest is the body of POST /cases/{case}/partition.
// A nil ChunkSize selects the configured default.
type PartitionRequest struct {
	IDs       []string `json:"ids"`
	ChunkSize *int     `json:"chunk_size,omitempty" example:"500"`
}

// DedupeRequest is the body of POST /cases/{case}/dedupe.
type DedupeRequest struct {
	IDs        []string `json:"ids"`
	TieBreaker string   `json:"tie_breaker,omitempty" example:"earliest"`
}

// NeighborsRequest is the body of POST /cases/{case}/neighbors.
type NeighborsRequest struct {
	IDs    []string `json:"ids" validate:"required"`
	Before *int     `json:"before,omitempty" example:"2"`
	After  *int     `json:"after,omitempty" example:"2"`
}

// NeighborsResponse wraps an expanded selection.
type NeighborsResponse struct {
	Records []caseservice.RecordView `json:"records" validate:"required"`
}

// CasesResponse wraps the case listing.
type CasesResponse struct {
	Cases []caseservice.CaseSummary `json:"cases" validate:"required"`
}

// ManifestResponse is returned after a manifest upload.
type ManifestResponse struct {
	Case     string `json:"case" example:"acme" validate:"required"`
	Manifest string `json:"manifest" example:"custodians/acme.yaml" validate:"required"`
	Checksum string `json:"checksum" validate:"required"`
}

// DigestGroupsResponse maps digests to record ids.
type DigestGroupsResponse struct {
	Groups map[string][]string `json:"groups" validate:"required"`
}

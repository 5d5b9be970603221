// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the casetree algorithms as tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/casetree/internal/caseservice"
)

const contractURI = "casetree://manifest-format"

// Server wraps the MCP server with casetree tools.
type Server struct {
	mcp *server.MCPServer
	svc *caseservice.Service
}

// New creates a new MCP server with all casetree tools registered.
func New(svc *caseservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"casetree",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	caseArg := mcp.WithString("case", mcp.Required(), mcp.Description("Case id"))
	idsArg := func(desc string) mcp.ToolOption {
		return mcp.WithString("ids", mcp.Description(desc))
	}

	s.mcp.AddTool(mcp.NewTool("list_cases",
		mcp.WithDescription("List the imported cases."),
	), s.listCases)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Get one record with its parent, family and path to the root."),
		caseArg,
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("nearest_ancestors",
		mcp.WithDescription("For each record, find the closest ancestor matching a predicate "+
			"(physical, container or kind:<kind>). Returns the distinct ancestors in record order "+
			"and a record-to-ancestor map."),
		caseArg,
		idsArg("Comma-separated record ids (empty for the whole case)"),
		mcp.WithString("predicate", mcp.Description("physical (default), container or kind:<kind>")),
	), s.nearestAncestors)

	s.mcp.AddTool(mcp.NewTool("partition_case",
		mcp.WithDescription("Split records into ordered chunks of at least chunk_size records "+
			"without ever separating a top-level record from its descendants."),
		caseArg,
		idsArg("Comma-separated record ids (empty for the whole case)"),
		mcp.WithNumber("chunk_size", mcp.Description("Minimum records per chunk; 0 or less puts each family in its own chunk")),
	), s.partitionCase)

	s.mcp.AddTool(mcp.NewTool("deduplicate",
		mcp.WithDescription("Keep one record per content digest. Records without a digest are always kept."),
		caseArg,
		idsArg("Comma-separated record ids (empty for the whole case)"),
		mcp.WithString("tie_breaker", mcp.Description("earliest (default), shallowest or physical")),
	), s.deduplicate)

	s.mcp.AddTool(mcp.NewTool("expand_neighbors",
		mcp.WithDescription("Add up to N preceding and M following siblings of each record."),
		caseArg,
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma-separated record ids")),
		mcp.WithNumber("before", mcp.Description("Siblings to add before each record")),
		mcp.WithNumber("after", mcp.Description("Siblings to add after each record")),
	), s.expandNeighbors)

	s.mcp.AddTool(mcp.NewTool("put_manifest",
		mcp.WithDescription("Write a case manifest and import it. Content MUST follow the manifest "+
			"format contract; read it first via get_manifest_contract or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative manifest path (must end with .yaml or .yml)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("YAML manifest")),
	), s.putManifest)

	s.mcp.AddTool(mcp.NewTool("get_manifest_contract",
		mcp.WithDescription("Returns the case manifest format contract."),
	), s.getManifestContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Case Manifest Format",
			mcp.WithResourceDescription("YAML format of casetree case manifests."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio serves the tools on stdin/stdout until ctx is cancelled or
// stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// splitIDs parses a comma-separated id list, dropping blanks.
func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCases(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cases, err := s.svc.Cases(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cases) == 0 {
		return mcp.NewToolResultText("no cases imported"), nil
	}
	return jsonResult(cases)
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Record(ctx, caseID, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) nearestAncestors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.NearestAncestors(ctx, caseID, splitIDs(req.GetString("ids", "")), req.GetString("predicate", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) partitionCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	size := req.GetInt("chunk_size", s.svc.Defaults().ChunkSize)

	var chunks []caseservice.Chunk
	_, err = s.svc.Partition(ctx, caseID, splitIDs(req.GetString("ids", "")), size, func(c caseservice.Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(chunks) == 0 {
		return mcp.NewToolResultText("no records to partition"), nil
	}
	return jsonResult(chunks)
}

func (s *Server) deduplicate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Deduplicate(ctx, caseID, splitIDs(req.GetString("ids", "")), req.GetString("tie_breaker", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) expandNeighbors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := req.RequireString("case")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d := s.svc.Defaults()
	records, err := s.svc.Neighbors(ctx, caseID, splitIDs(raw),
		req.GetInt("before", d.ItemsBefore),
		req.GetInt("after", d.ItemsAfter))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(records)
}

func (s *Server) putManifest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	caseID, err := s.svc.PutManifest(ctx, path, []byte(content), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported case %s from %s", caseID, path)), nil
}

func (s *Server) getManifestContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ManifestFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ManifestFormatContract,
		},
	}, nil
}

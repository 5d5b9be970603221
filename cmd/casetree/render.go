package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/starford/casetree/internal/caseservice"
)

type caseChunk = caseservice.Chunk

// chunkRow summarises one partition chunk.
type chunkRow struct {
	BatchID string   `json:"batch_id"`
	Index   int      `json:"index"`
	Size    int      `json:"size"`
	First   string   `json:"first"`
	Last    string   `json:"last"`
	IDs     []string `json:"ids"`
}

func newChunkRow(c caseChunk) chunkRow {
	row := chunkRow{BatchID: c.BatchID, Index: c.Index, Size: len(c.Records)}
	for _, r := range c.Records {
		row.IDs = append(row.IDs, r.ID)
	}
	if n := len(c.Records); n > 0 {
		row.First = c.Records[0].Position
		row.Last = c.Records[n-1].Position
	}
	return row
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func render(t table.Writer, format string) {
	if format == "md" || format == "markdown" {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func renderCases(w io.Writer, cases []caseservice.CaseSummary, format string) error {
	if format == "json" {
		return renderJSON(w, cases)
	}
	if len(cases) == 0 {
		_, _ = fmt.Fprintln(w, "(0 cases)")
		return nil
	}
	t := newTable(w, table.Row{"Case", "Manifest", "Checksum", "Updated"})
	for _, c := range cases {
		t.AppendRow(table.Row{c.ID, c.Manifest, short(c.Checksum), c.UpdatedAt.Format("2006-01-02 15:04:05")})
	}
	render(t, format)
	return nil
}

func renderChunks(w io.Writer, chunks []chunkRow, format string) error {
	if format == "json" {
		return renderJSON(w, chunks)
	}
	if len(chunks) == 0 {
		_, _ = fmt.Fprintln(w, "(0 chunks)")
		return nil
	}
	t := newTable(w, table.Row{"#", "Records", "First", "Last"})
	total := 0
	for _, c := range chunks {
		t.AppendRow(table.Row{c.Index, c.Size, c.First, c.Last})
		total += c.Size
	}
	t.AppendFooter(table.Row{"", total, "", ""})
	render(t, format)
	_, _ = fmt.Fprintf(w, "batch %s: %d chunks\n", chunks[0].BatchID, len(chunks))
	return nil
}

func renderSurvivors(w io.Writer, res *caseservice.DedupeResult, format string) error {
	if format == "json" {
		return renderJSON(w, res)
	}
	t := newTable(w, table.Row{"Record", "Position", "Kind", "Physical", "Digest"})
	for _, r := range res.Survivors {
		t.AppendRow(table.Row{r.ID, r.Position, r.Kind, r.Physical, short(r.Digest)})
	}
	render(t, format)
	_, _ = fmt.Fprintf(w, "(%d kept, %d removed, tie-breaker %s)\n", len(res.Survivors), res.Removed, res.TieBreaker)
	return nil
}

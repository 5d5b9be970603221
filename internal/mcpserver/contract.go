package mcpserver

// ManifestFormatContract describes the YAML case manifest format that LLM
// consumers should follow when writing manifests.
const ManifestFormatContract = `# casetree Case Manifest Format

A case manifest is a YAML file (` + "`.yaml`" + ` or ` + "`.yml`" + `) in the case folder. Each
manifest describes exactly one case as a forest of records.

## Structure

` + "```" + `yaml
case: acme-2024            # REQUIRED, unique across the case folder, 1-128 chars
records:                   # top-level records, in production order
  - id: box-001            # REQUIRED, unique within the case
    name: Mailbox export
    kind: container        # container | email | document | attachment | file
    physical: true         # true when the record exists as a file on disk
    file: exports/box-001.pst
    children:
      - id: msg-0001
        kind: email
        digest: 3a7bd3e2360a3d...   # optional hex SHA-256 (64 chars)
        children:
          - id: att-0001
            kind: attachment
            file: attachments/att-0001.pdf
` + "```" + `

## Rules

1. **Order is meaningful.** Sibling order in the file is the record order used
   by partitioning and neighbour expansion.
2. **Ids** are unique within the case. Duplicate ids or a child listing its own
   ancestor make the whole manifest invalid.
3. **Digests** are lowercase hex SHA-256. When ` + "`digest`" + ` is omitted and ` + "`file`" + `
   is set, the digest is computed from the file's bytes on import.
4. **Records without a digest** are never treated as duplicates.
5. **File paths** are relative to the case folder and use forward slashes.
6. **Only ` + "`container`" + `** has special meaning to the algorithms; other kinds
   are free-form labels.

## Tools

- ` + "`nearest_ancestors`" + ` predicates: ` + "`physical`" + ` (default), ` + "`container`" + `,
  ` + "`kind:<kind>`" + `.
- ` + "`deduplicate`" + ` tie-breakers: ` + "`earliest`" + ` (default), ` + "`shallowest`" + `,
  ` + "`physical`" + `.
`

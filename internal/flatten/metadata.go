package flatten

import (
	"context"
	"fmt"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// collisionSuffix is appended to a flattened field that shares its name with
// a metadata column.
const collisionSuffix = "_record"

// DefaultMetadataColumns are the row-level columns carried onto every record
// of an exported extraction table. "id" is the section extraction id.
var DefaultMetadataColumns = []string{
	"organization_id", "project_id", "subject_id", "document_id",
	"section_type", "section", "created", "model_id",
	"extraction_schema", "id",
}

// SandboxMetadataColumns are the metadata columns of a sandbox warehouse
// query, where the section extraction id is aliased.
var SandboxMetadataColumns = []string{
	"organization_id", "project_id", "subject_id", "document_id",
	"section_type", "section", "created", "model_id",
	"extraction_schema", "section_extraction_id",
}

// AvailableColumns filters requested down to the columns src has, keeping
// the requested order.
func AvailableColumns(src *table.Table, requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, c := range requested {
		if src.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// AttachMetadata left-joins each flattened record to its source row and
// returns a table whose metadata columns come first, in requested order,
// followed by the flattened fields. Every requested column must exist in src.
func AttachMetadata(ctx context.Context, flat *Result, src *table.Table, metadataColumns []string) (*table.Table, error) {
	log := logger.FromContext(ctx)

	for _, c := range metadataColumns {
		if !src.Has(c) {
			return nil, qaerrors.MissingColumn("metadata", "source", c)
		}
	}

	out := table.New(metadataColumns...)
	metaCols := out.Columns()
	metaPos := make([]int, len(metaCols))
	for k, c := range metaCols {
		metaPos[k], _ = src.Index(c)
	}

	fieldCols := flat.Table.Columns()
	fieldPos := make([]int, len(fieldCols))
	for k, c := range fieldCols {
		name := c
		for out.Has(name) {
			name += collisionSuffix
		}
		if name != c {
			log.Warn().Str("field", c).Str("renamed", name).Msg("Extracted field collides with a metadata column")
		}
		fieldPos[k] = out.AddColumn(name)
	}

	for i := 0; i < flat.Table.Len(); i++ {
		origin := flat.Origins[i]
		if origin < 0 || origin >= src.Len() {
			return nil, fmt.Errorf("AttachMetadata: record %d has origin row %d outside source of %d rows", i, origin, src.Len())
		}

		row := make(table.Row, out.Width())
		for k, j := range metaPos {
			row[k] = src.At(origin, j)
		}
		for k, j := range fieldPos {
			row[j] = flat.Table.At(i, k)
		}
		out.Append(row)
	}

	return out, nil
}

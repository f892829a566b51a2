package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

const (
	defaultDataset = "sandbox"
	defaultTable   = "section_extraction"

	// subjectIDsExpr replaces the placeholder in user queries, so that
	// "IN ({{SUBJECT_IDS}})" reads the bound array.
	subjectIDsExpr = "SELECT * FROM UNNEST(@subject_ids)"
)

func withDefaults(cfg warehouse.BigQueryConfig) warehouse.BigQueryConfig {
	if cfg.Dataset == "" {
		cfg.Dataset = defaultDataset
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	return cfg
}

// buildQuery returns the SQL and parameters for req. Subject ids, schema and
// date are always bound as parameters.
func buildQuery(cfg warehouse.BigQueryConfig, req warehouse.Request) (string, []bigquery.QueryParameter) {
	params := []bigquery.QueryParameter{
		{Name: "subject_ids", Value: req.SubjectIDs},
	}

	if req.SQL != "" {
		return warehouse.ExpandPlaceholder(req.SQL, subjectIDsExpr), params
	}

	cfg = withDefaults(cfg)
	var b strings.Builder
	fmt.Fprintf(&b, `
		SELECT
			*,
			id AS section_extraction_id,
			FORMAT_TIMESTAMP('%%m/%%d/%%Y', created) AS created_fmt
		FROM `+"`%s.%s.%s`"+`
		WHERE subject_id IN UNNEST(@subject_ids)
			AND extraction_schema = @extraction_schema`, cfg.ProjectID, cfg.Dataset, cfg.Table)
	params = append(params, bigquery.QueryParameter{Name: "extraction_schema", Value: req.Schema})

	if req.CreatedOn.IsValid() {
		b.WriteString(`
			AND DATE(created) = @created`)
		params = append(params, bigquery.QueryParameter{Name: "created", Value: req.CreatedOn})
	}
	b.WriteString(`
		ORDER BY created DESC
	`)
	return b.String(), params
}

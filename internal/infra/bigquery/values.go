package bigquery

import (
	"cloud.google.com/go/bigquery"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

func convertRow(values []bigquery.Value) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = table.FormatValue(plain(v))
	}
	return row
}

// plain rewrites repeated and record values into []any and map[string]any so
// they are rendered as JSON text.
func plain(v bigquery.Value) any {
	switch t := v.(type) {
	case []bigquery.Value:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case map[string]bigquery.Value:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	default:
		return t
	}
}

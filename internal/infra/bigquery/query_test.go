package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

func TestBuildQuery_Default(t *testing.T) {
	cfg := warehouse.BigQueryConfig{ProjectID: "proj"}
	req := warehouse.Request{Schema: "payer-v2", SubjectIDs: []string{"s1", "s2"}}

	sql, params := buildQuery(cfg, req)

	assert.Contains(t, sql, "`proj.sandbox.section_extraction`")
	assert.Contains(t, sql, "id AS section_extraction_id")
	assert.Contains(t, sql, "FORMAT_TIMESTAMP('%m/%d/%Y', created) AS created_fmt")
	assert.Contains(t, sql, "subject_id IN UNNEST(@subject_ids)")
	assert.Contains(t, sql, "ORDER BY created DESC")
	assert.NotContains(t, sql, "@created")
	assert.NotContains(t, sql, "s1", "ids are bound, never interpolated")

	require.Len(t, params, 2)
	assert.Equal(t, bigquery.QueryParameter{Name: "subject_ids", Value: []string{"s1", "s2"}}, params[0])
	assert.Equal(t, bigquery.QueryParameter{Name: "extraction_schema", Value: "payer-v2"}, params[1])
}

func TestBuildQuery_CreatedFilter(t *testing.T) {
	day := civil.Date{Year: 2025, Month: time.March, Day: 4}
	cfg := warehouse.BigQueryConfig{ProjectID: "proj", Dataset: "qa", Table: "extractions"}
	req := warehouse.Request{Schema: "payer-v2", SubjectIDs: []string{"s1"}, CreatedOn: day}

	sql, params := buildQuery(cfg, req)

	assert.Contains(t, sql, "`proj.qa.extractions`")
	assert.Contains(t, sql, "AND DATE(created) = @created")
	require.Len(t, params, 3)
	assert.Equal(t, day, params[2].Value)
}

func TestBuildQuery_CustomSQL(t *testing.T) {
	req := warehouse.Request{
		SubjectIDs: []string{"s1"},
		SQL:        "SELECT * FROM fhir.coverage WHERE subject_id IN ({{SUBJECT_IDS}})",
	}

	sql, params := buildQuery(warehouse.BigQueryConfig{ProjectID: "proj"}, req)

	assert.Equal(t, "SELECT * FROM fhir.coverage WHERE subject_id IN (SELECT * FROM UNNEST(@subject_ids))", sql)
	require.Len(t, params, 1)
	assert.Equal(t, "subject_ids", params[0].Name)
}

func TestConvertRow(t *testing.T) {
	row := convertRow([]bigquery.Value{
		"s1",
		nil,
		int64(42),
		big.NewRat(5, 2),
		civil.Date{Year: 2025, Month: time.January, Day: 2},
		[]bigquery.Value{"a", int64(1)},
		map[string]bigquery.Value{"k": "v"},
	})

	assert.Equal(t, table.Row{
		table.Str("s1"),
		table.Null,
		table.Str("42"),
		table.Str("2.5"),
		table.Str("2025-01-02"),
		table.Str(`["a",1]`),
		table.Str(`{"k":"v"}`),
	}, row)
}

func TestSchemaColumns(t *testing.T) {
	schema := bigquery.Schema{{Name: "subject_id"}, {Name: "response"}}
	assert.Equal(t, []string{"subject_id", "response"}, schemaColumns(schema))
}

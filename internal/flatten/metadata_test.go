package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

func TestAttachMetadata_MetadataFirst(t *testing.T) {
	src := sourceTable(
		encode(t, `{"name":"A","dose":"1"}`, `{"name":"B"}`),
		table.Null,
		encode(t, `{"name":"C"}`),
	)

	flat, err := Flatten(testContext(), src, DefaultJSONColumn)
	require.NoError(t, err)

	out, err := AttachMetadata(testContext(), flat, src, []string{"subject_id", "id"})
	require.NoError(t, err)

	assert.Equal(t, []string{"subject_id", "id", "name", "dose"}, out.Columns())
	require.Equal(t, 3, out.Len())
	assert.Equal(t, table.Row{table.Str("subj"), table.Str("100"), table.Str("A"), table.Str("1")}, out.Row(0))
	assert.Equal(t, table.Row{table.Str("subj"), table.Str("100"), table.Str("B"), table.Null}, out.Row(1))
	assert.Equal(t, table.Str("102"), out.Cell(2, "id"))
}

func TestAttachMetadata_MissingColumnIsConfigError(t *testing.T) {
	src := sourceTable(encode(t, `{"name":"A"}`))
	flat, err := Flatten(testContext(), src, DefaultJSONColumn)
	require.NoError(t, err)

	_, err = AttachMetadata(testContext(), flat, src, []string{"subject_id", "model_id"})
	require.Error(t, err)
	assert.True(t, qaerrors.IsConfig(err))
	assert.Contains(t, err.Error(), "model_id")
}

func TestAttachMetadata_FieldCollidingWithMetadata(t *testing.T) {
	src := sourceTable(encode(t, `{"id":"inner","name":"A"}`))
	flat, err := Flatten(testContext(), src, DefaultJSONColumn)
	require.NoError(t, err)

	out, err := AttachMetadata(testContext(), flat, src, []string{"id"})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "id_record", "name"}, out.Columns())
	assert.Equal(t, table.Str("100"), out.Cell(0, "id"))
	assert.Equal(t, table.Str("inner"), out.Cell(0, "id_record"))
}

func TestAvailableColumns(t *testing.T) {
	src := table.New("subject_id", "document_id", "response")
	got := AvailableColumns(src, DefaultMetadataColumns)
	assert.Equal(t, []string{"subject_id", "document_id"}, got)
}

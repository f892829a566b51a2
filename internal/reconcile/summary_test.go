package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
)

func TestSummarize_ThreeMatchesOneMismatch(t *testing.T) {
	source := build([]string{"id", "name"},
		[]string{"1", "A"}, []string{"2", "b"}, []string{"3", "c "}, []string{"4", "d"})
	reference := build([]string{"id", "name"},
		[]string{"1", "a"}, []string{"2", "B"}, []string{"3", "C"}, []string{"4", "e"})

	res, err := Reconcile(testContext(), source, reference, Options{
		MatchKeys: []string{"id"},
		Fields:    mapping(t, direct("name")),
	})
	require.NoError(t, err)

	rows, err := Summarize(res.Table, res.Labels(), fieldmap.Sides{})
	require.NoError(t, err)
	assert.Equal(t, []SummaryRow{{Field: "name", Matches: 3, Mismatches: 1}}, rows)
}

func TestSummarize_CountsSumToRows(t *testing.T) {
	source := build([]string{"id", "a", "b"},
		[]string{"1", "x", "<null>"},
		[]string{"2", "<null>", "y"},
	)
	reference := build([]string{"id", "a", "b"},
		[]string{"1", "<null>", "<null>"},
		[]string{"3", "z", "y"},
	)

	res, err := Reconcile(testContext(), source, reference, Options{
		MatchKeys: []string{"id"},
		Fields:    mapping(t, direct("a"), direct("b")),
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Table.Len())

	rows, err := Summarize(res.Table, res.Labels(), fieldmap.Sides{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, r := range rows {
		assert.Equal(t, res.Table.Len(), r.Total(), r.Field)
	}

	// a: x/null no, null/<absent> match, <absent>/z no
	assert.Equal(t, SummaryRow{Field: "a", Matches: 1, Mismatches: 2, NullInSource: 2, NullInReference: 2}, rows[0])
	// b: null/null match, y/<absent> no, <absent>/y no
	assert.Equal(t, SummaryRow{Field: "b", Matches: 1, Mismatches: 2, NullInSource: 2, NullInReference: 2}, rows[1])
}

func TestSummarize_MissingColumn(t *testing.T) {
	reconciled := build([]string{"id", "source_name", "name_match"})
	_, err := Summarize(reconciled, []string{"name"}, fieldmap.Sides{})
	require.Error(t, err)
	assert.True(t, qaerrors.IsConfig(err))
	assert.Contains(t, err.Error(), "reference_name")
}

func TestSummaryTable(t *testing.T) {
	rows := []SummaryRow{{Field: "name", Matches: 3, Mismatches: 1}}

	got := SummaryTable(rows, fieldmap.Sides{Source: "raw", Reference: "prod"})
	assert.Equal(t, []string{"field", "matches", "mismatches", "null_in_raw", "null_in_prod"}, got.Columns())
	assert.Equal(t, []string{"name", "3", "1", "0", "0"}, []string{
		got.At(0, 0).Value, got.At(0, 1).Value, got.At(0, 2).Value, got.At(0, 3).Value, got.At(0, 4).Value,
	})

	def := SummaryTable(rows, fieldmap.Sides{})
	assert.Equal(t, []string{"field", "matches", "mismatches", "null_in_source", "null_in_reference"}, def.Columns())
}

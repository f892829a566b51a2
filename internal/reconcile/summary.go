package reconcile

import (
	"strconv"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// SummaryRow holds the counts for one field label.
type SummaryRow struct {
	Field           string
	Matches         int
	Mismatches      int
	NullInSource    int
	NullInReference int
}

// Total is the number of rows the counts were taken over.
func (s SummaryRow) Total() int {
	return s.Matches + s.Mismatches
}

// Summarize counts verdicts and nulls per label over a reconciled table.
// Any verdict other than "match" counts as a mismatch.
func Summarize(t *table.Table, labels []string, sides fieldmap.Sides) ([]SummaryRow, error) {
	sides = sides.WithDefaults()

	type cols struct{ src, ref, match int }
	index := func(name string) (int, error) {
		j, ok := t.Index(name)
		if !ok {
			return 0, qaerrors.MissingColumn("summary", "reconciled", name)
		}
		return j, nil
	}

	pos := make([]cols, len(labels))
	for k, label := range labels {
		var err error
		if pos[k].src, err = index(sides.ValueColumn(fieldmap.Source, label)); err != nil {
			return nil, err
		}
		if pos[k].ref, err = index(sides.ValueColumn(fieldmap.Reference, label)); err != nil {
			return nil, err
		}
		if pos[k].match, err = index(fieldmap.MatchColumn(label)); err != nil {
			return nil, err
		}
	}

	out := make([]SummaryRow, len(labels))
	for k, label := range labels {
		row := SummaryRow{Field: label}
		c := pos[k]
		for i := 0; i < t.Len(); i++ {
			if t.At(i, c.match).String() == VerdictMatch {
				row.Matches++
			} else {
				row.Mismatches++
			}
			if !t.At(i, c.src).Valid {
				row.NullInSource++
			}
			if !t.At(i, c.ref).Valid {
				row.NullInReference++
			}
		}
		out[k] = row
	}
	return out, nil
}

// SummaryTable lays rows out with columns field, matches, mismatches,
// null_in_<source>, null_in_<reference>.
func SummaryTable(rows []SummaryRow, sides fieldmap.Sides) *table.Table {
	sides = sides.WithDefaults()
	t := table.New("field", "matches", "mismatches", "null_in_"+sides.Source, "null_in_"+sides.Reference)
	for _, r := range rows {
		t.Append(table.Row{
			table.Str(r.Field),
			table.Str(strconv.Itoa(r.Matches)),
			table.Str(strconv.Itoa(r.Mismatches)),
			table.Str(strconv.Itoa(r.NullInSource)),
			table.Str(strconv.Itoa(r.NullInReference)),
		})
	}
	return t
}

// Package reconcile joins two flattened extraction tables on a composite key
// and labels every mapped field of every joined row as a match or not.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// Verdict values written to <label>_match columns.
const (
	VerdictMatch   = "match"
	VerdictNoMatch = "no_match"
)

// NullPolicy decides how a null field value compares.
type NullPolicy int

const (
	// NullsEqual treats null as "", so null against null is a match.
	NullsEqual NullPolicy = iota
	// NullsDistinct makes any comparison involving a null a mismatch.
	NullsDistinct
)

func (p NullPolicy) String() string {
	switch p {
	case NullsEqual:
		return "equal"
	case NullsDistinct:
		return "distinct"
	default:
		return fmt.Sprintf("NullPolicy(%d)", int(p))
	}
}

// ParseNullPolicy accepts "equal" (or "") and "distinct".
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "equal":
		return NullsEqual, nil
	case "distinct":
		return NullsDistinct, nil
	default:
		return 0, qaerrors.NewConfigError("reconcile", fmt.Sprintf("unknown null policy %q, want equal or distinct", s), nil)
	}
}

// Options configures one reconciliation.
type Options struct {
	MatchKeys []string
	Fields    fieldmap.Mapping
	Sides     fieldmap.Sides
	Nulls     NullPolicy
	// IncludeUnmapped appends every other non-key column of both sides.
	IncludeUnmapped bool
}

// FieldColumns names the output columns written for one label.
type FieldColumns struct {
	Label     string
	Source    string
	Reference string
	Match     string
}

// Result is the joined table and its join statistics.
type Result struct {
	Table  *table.Table
	Fields []FieldColumns
	// SourceOnly and ReferenceOnly count rows without a partner.
	SourceOnly    int
	ReferenceOnly int
	// Matched counts rows with both sides present.
	Matched int
}

// Empty reports whether the join produced no rows.
func (r *Result) Empty() bool {
	return r.Table.Len() == 0
}

// Labels returns the field labels in output order.
func (r *Result) Labels() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Label
	}
	return out
}

type boundField struct {
	cols FieldColumns
	src  int
	ref  int
	out  [3]int
}

// carried is an unmapped column copied through from one side.
type carried struct {
	side fieldmap.Side
	from int
	out  int
}

// Reconcile full-outer-joins source and reference on opts.MatchKeys.
// Source rows keep their order, each followed by every reference row with
// the same key; reference rows that matched nothing come last. Every
// configuration problem is reported as a ConfigError before any row is read.
func Reconcile(ctx context.Context, source, reference *table.Table, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	sides := opts.Sides.WithDefaults()
	if err := sides.Validate(); err != nil {
		return nil, err
	}
	srcKeys, refKeys, err := keyPositions(source, reference, opts.MatchKeys)
	if err != nil {
		return nil, err
	}

	out := table.New(opts.MatchKeys...)
	if out.Width() != len(opts.MatchKeys) {
		return nil, qaerrors.NewConfigError("reconcile", "match keys must be distinct", nil)
	}

	fields, err := bindFields(source, reference, opts.Fields, sides, out)
	if err != nil {
		return nil, err
	}

	var extra []carried
	if opts.IncludeUnmapped {
		extra = carryUnmapped(source, reference, opts, sides, out)
	}

	refIndex := make(map[string][]int, reference.Len())
	for i := 0; i < reference.Len(); i++ {
		k := joinKey(reference, i, refKeys)
		refIndex[k] = append(refIndex[k], i)
	}

	res := &Result{Table: out}
	for _, f := range fields {
		res.Fields = append(res.Fields, f.cols)
	}

	refUsed := make([]bool, reference.Len())
	for i := 0; i < source.Len(); i++ {
		partners := refIndex[joinKey(source, i, srcKeys)]
		if len(partners) == 0 {
			out.Append(buildRow(out.Width(), source, i, srcKeys, reference, -1, fields, extra, opts.Nulls))
			res.SourceOnly++
			continue
		}
		for _, r := range partners {
			refUsed[r] = true
			out.Append(buildRow(out.Width(), source, i, srcKeys, reference, r, fields, extra, opts.Nulls))
			res.Matched++
		}
	}
	for r := 0; r < reference.Len(); r++ {
		if refUsed[r] {
			continue
		}
		out.Append(buildRow(out.Width(), source, -1, refKeys, reference, r, fields, extra, opts.Nulls))
		res.ReferenceOnly++
	}

	log.Info().
		Int("source_rows", source.Len()).
		Int("reference_rows", reference.Len()).
		Int("matched", res.Matched).
		Int("source_only", res.SourceOnly).
		Int("reference_only", res.ReferenceOnly).
		Int("fields", len(fields)).
		Msg("Reconciled tables")

	return res, nil
}

func keyPositions(source, reference *table.Table, keys []string) ([]int, []int, error) {
	if len(keys) == 0 {
		return nil, nil, qaerrors.NewConfigError("reconcile", "at least one match key is required", nil)
	}
	srcPos := make([]int, len(keys))
	refPos := make([]int, len(keys))
	for k, key := range keys {
		var ok bool
		if srcPos[k], ok = source.Index(key); !ok {
			return nil, nil, qaerrors.MissingColumn("reconcile", fieldmap.Source.String(), key)
		}
		if refPos[k], ok = reference.Index(key); !ok {
			return nil, nil, qaerrors.MissingColumn("reconcile", fieldmap.Reference.String(), key)
		}
	}
	return srcPos, refPos, nil
}

func bindFields(source, reference *table.Table, mapping fieldmap.Mapping, sides fieldmap.Sides, out *table.Table) ([]boundField, error) {
	if _, err := fieldmap.NewMapping(mapping...); err != nil {
		return nil, err
	}

	bound := make([]boundField, 0, len(mapping))
	for _, f := range mapping {
		srcCol, err := fieldmap.ResolveIn(f.Spec, fieldmap.Source, source)
		if err != nil {
			return nil, err
		}
		refCol, err := fieldmap.ResolveIn(f.Spec, fieldmap.Reference, reference)
		if err != nil {
			return nil, err
		}

		b := boundField{cols: FieldColumns{
			Label:     f.Label,
			Source:    sides.ValueColumn(fieldmap.Source, f.Label),
			Reference: sides.ValueColumn(fieldmap.Reference, f.Label),
			Match:     fieldmap.MatchColumn(f.Label),
		}}
		b.src, _ = source.Index(srcCol)
		b.ref, _ = reference.Index(refCol)
		for k, name := range []string{b.cols.Source, b.cols.Reference, b.cols.Match} {
			if out.Has(name) {
				return nil, qaerrors.NewConfigError("reconcile",
					fmt.Sprintf("output column %q of field %q clashes with another output column", name, f.Label), nil)
			}
			b.out[k] = out.AddColumn(name)
		}
		bound = append(bound, b)
	}
	return bound, nil
}

// carryUnmapped adds the non-key columns of both sides to out. A column
// present on both sides is suffixed with each side's name.
func carryUnmapped(source, reference *table.Table, opts Options, sides fieldmap.Sides, out *table.Table) []carried {
	keys := make(map[string]struct{}, len(opts.MatchKeys))
	for _, k := range opts.MatchKeys {
		keys[k] = struct{}{}
	}

	var extra []carried
	add := func(side fieldmap.Side, t, other *table.Table) {
		for j, col := range t.Columns() {
			if _, isKey := keys[col]; isKey {
				continue
			}
			name := col
			if other.Has(col) {
				name = col + "_" + sides.Name(side)
			}
			for out.Has(name) {
				name += "_" + sides.Name(side)
			}
			extra = append(extra, carried{side: side, from: j, out: out.AddColumn(name)})
		}
	}
	add(fieldmap.Source, source, reference)
	add(fieldmap.Reference, reference, source)
	return extra
}

// joinKey encodes the key cells of row i. Null parts encode distinctly from
// "" but equal to each other.
func joinKey(t *table.Table, i int, pos []int) string {
	var b strings.Builder
	for _, j := range pos {
		c := t.At(i, j)
		if !c.Valid {
			b.WriteString("\x00")
		} else {
			b.WriteString("\x01")
			b.WriteString(c.Value)
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

// buildRow assembles one output row; s or r is -1 when that side is absent.
// keyPos indexes the key columns of whichever side is present, source first.
func buildRow(width int, source *table.Table, s int, keyPos []int, reference *table.Table, r int, fields []boundField, extra []carried, nulls NullPolicy) table.Row {
	row := make(table.Row, width)

	keySide, keyRow := source, s
	if s < 0 {
		keySide, keyRow = reference, r
	}
	for k, j := range keyPos {
		row[k] = keySide.At(keyRow, j)
	}

	for _, f := range fields {
		sv, rv := table.Null, table.Null
		if s >= 0 {
			sv = source.At(s, f.src)
		}
		if r >= 0 {
			rv = reference.At(r, f.ref)
		}
		row[f.out[0]] = sv
		row[f.out[1]] = rv
		row[f.out[2]] = table.Str(verdict(sv, rv, nulls))
	}

	for _, c := range extra {
		switch {
		case c.side == fieldmap.Source && s >= 0:
			row[c.out] = source.At(s, c.from)
		case c.side == fieldmap.Reference && r >= 0:
			row[c.out] = reference.At(r, c.from)
		}
	}
	return row
}

func verdict(sv, rv table.Cell, nulls NullPolicy) string {
	if nulls == NullsDistinct && (!sv.Valid || !rv.Valid) {
		return VerdictNoMatch
	}
	if Equal(sv, rv) {
		return VerdictMatch
	}
	return VerdictNoMatch
}

// Package fieldmap describes how a comparison label maps onto a column of
// each side of a reconciliation.
package fieldmap

import (
	"fmt"
	"strings"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// Side selects one of the two tables being reconciled.
type Side int

const (
	// Source is the candidate side, such as a sandbox extraction run.
	Source Side = iota
	// Reference is the baseline side, such as production output.
	Reference
)

func (s Side) String() string {
	switch s {
	case Source:
		return "source"
	case Reference:
		return "reference"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Kind tells a Spec whether both sides share a column name.
type Kind int

const (
	Direct Kind = iota
	Renamed
)

// Spec names the column a label reads on each side.
type Spec struct {
	kind      Kind
	source    string
	reference string
}

// NewDirect returns a spec whose column has the same name on both sides.
func NewDirect(name string) Spec {
	return Spec{kind: Direct, source: name, reference: name}
}

// NewRenamed returns a spec whose column is named differently per side.
func NewRenamed(source, reference string) Spec {
	return Spec{kind: Renamed, source: source, reference: reference}
}

// Kind reports whether the field is direct or renamed.
func (s Spec) Kind() Kind {
	return s.kind
}

// Resolve returns the column name on the given side.
func Resolve(s Spec, side Side) string {
	if side == Reference {
		return s.reference
	}
	return s.source
}

// ResolveIn resolves s on side and checks that t has the column.
func ResolveIn(s Spec, side Side, t *table.Table) (string, error) {
	col := Resolve(s, side)
	if !t.Has(col) {
		return "", qaerrors.MissingColumn("fieldmap", side.String(), col)
	}
	return col, nil
}

func (s Spec) String() string {
	if s.kind == Direct {
		return s.source
	}
	return s.source + "->" + s.reference
}

// sideKeys are the accepted object keys of a renamed field, in
// (source, reference) pairs.
var sideKeys = [][2]string{
	{"raw", "prod"},
	{"source", "reference"},
}

// FromValue builds a Spec from a decoded config value: a column name, or an
// object with exactly one source and one reference key.
func FromValue(label string, v any) (Spec, error) {
	switch val := v.(type) {
	case string:
		name := strings.TrimSpace(val)
		if name == "" {
			return Spec{}, qaerrors.NewConfigError("fieldmap", fmt.Sprintf("field %q maps to an empty column name", label), nil)
		}
		return NewDirect(name), nil
	case map[string]any:
		return fromPairs(label, val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return fromPairs(label, m)
	case nil:
		return Spec{}, qaerrors.NewConfigError("fieldmap", fmt.Sprintf("field %q has no mapping", label), nil)
	default:
		return Spec{}, qaerrors.NewConfigError("fieldmap", fmt.Sprintf("field %q: unsupported mapping of type %T", label, v), nil)
	}
}

func fromPairs(label string, m map[string]any) (Spec, error) {
	if len(m) != 2 {
		return Spec{}, qaerrors.NewConfigError("fieldmap",
			fmt.Sprintf("field %q: a renamed mapping needs exactly two keys, got %d", label, len(m)), nil)
	}
	for _, keys := range sideKeys {
		src, okSrc := m[keys[0]]
		ref, okRef := m[keys[1]]
		if !okSrc || !okRef {
			continue
		}
		srcName, ok1 := src.(string)
		refName, ok2 := ref.(string)
		srcName, refName = strings.TrimSpace(srcName), strings.TrimSpace(refName)
		if !ok1 || !ok2 || srcName == "" || refName == "" {
			return Spec{}, qaerrors.NewConfigError("fieldmap",
				fmt.Sprintf("field %q: %s and %s must be non-empty column names", label, keys[0], keys[1]), nil)
		}
		if srcName == refName {
			return NewDirect(srcName), nil
		}
		return NewRenamed(srcName, refName), nil
	}
	return Spec{}, qaerrors.NewConfigError("fieldmap",
		fmt.Sprintf("field %q: expected keys raw/prod or source/reference", label), nil)
}

// Field is one labelled comparison.
type Field struct {
	Label string
	Spec  Spec
}

// Mapping is an ordered list of fields; output columns follow its order.
type Mapping []Field

// NewMapping validates fields and returns them as a Mapping.
func NewMapping(fields ...Field) (Mapping, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Label) == "" {
			return nil, qaerrors.NewConfigError("fieldmap", "field label must not be empty", nil)
		}
		if _, dup := seen[f.Label]; dup {
			return nil, qaerrors.NewConfigError("fieldmap", fmt.Sprintf("duplicate field label %q", f.Label), nil)
		}
		seen[f.Label] = struct{}{}
	}
	return Mapping(fields), nil
}

// Labels returns the labels in declared order.
func (m Mapping) Labels() []string {
	out := make([]string, len(m))
	for i, f := range m {
		out[i] = f.Label
	}
	return out
}

// Columns returns the distinct column names the mapping reads on side.
func (m Mapping) Columns(side Side) []string {
	seen := make(map[string]struct{}, len(m))
	out := make([]string, 0, len(m))
	for _, f := range m {
		c := Resolve(f.Spec, side)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Sides names the two tables in output column names.
type Sides struct {
	Source    string
	Reference string
}

// DefaultSides is used when no side names are configured.
var DefaultSides = Sides{Source: "source", Reference: "reference"}

// WithDefaults fills empty names from DefaultSides.
func (s Sides) WithDefaults() Sides {
	if s.Source == "" {
		s.Source = DefaultSides.Source
	}
	if s.Reference == "" {
		s.Reference = DefaultSides.Reference
	}
	return s
}

// Validate rejects side names that would produce ambiguous columns.
func (s Sides) Validate() error {
	s = s.WithDefaults()
	if s.Source == s.Reference {
		return qaerrors.NewConfigError("fieldmap", fmt.Sprintf("side names must differ, both are %q", s.Source), nil)
	}
	return nil
}

// Name returns the configured name of side.
func (s Sides) Name(side Side) string {
	s = s.WithDefaults()
	if side == Reference {
		return s.Reference
	}
	return s.Source
}

// ValueColumn is the output column holding side's value for label.
func (s Sides) ValueColumn(side Side, label string) string {
	return s.Name(side) + "_" + label
}

// MatchColumn is the output column holding the verdict for label.
func MatchColumn(label string) string {
	return label + "_match"
}

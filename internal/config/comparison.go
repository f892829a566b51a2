// Package config loads the comparison config that drives a reconciliation
// and the process settings that configure warehouses, storage and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/reconcile"
)

// DefaultMatchKeys identify one extracted section across sandbox and
// production outputs.
var DefaultMatchKeys = []string{
	"subject_id", "document_id", "section", "extraction_schema", "section_extraction_id",
}

// Comparison is the YAML comparison config. Fields keeps declaration order;
// each value is a column name or a {raw, prod} / {source, reference} pair.
type Comparison struct {
	MatchKeys       []string      `yaml:"match_keys"`
	Fields          yaml.MapSlice `yaml:"fields"`
	Sides           *SideNames    `yaml:"sides,omitempty"`
	Nulls           string        `yaml:"nulls,omitempty"`
	IncludeUnmapped bool          `yaml:"include_unmapped,omitempty"`
}

// SideNames overrides the side names used in output column names.
type SideNames struct {
	Source    string `yaml:"source"`
	Reference string `yaml:"reference"`
}

// ParseComparison decodes a comparison config. Unknown keys are rejected.
func ParseComparison(data []byte) (*Comparison, error) {
	var c Comparison
	if err := yaml.UnmarshalWithOptions(data, &c, yaml.Strict()); err != nil {
		return nil, qaerrors.NewConfigError("config", "parsing comparison config", err)
	}
	return &c, nil
}

// LoadComparisonFile reads and decodes a comparison config from disk.
func LoadComparisonFile(path string) (*Comparison, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadComparisonFile: %w", err)
	}
	return ParseComparison(data)
}

// Options resolves the config into reconciliation options. Field mappings
// are interpreted here, once.
func (c *Comparison) Options() (reconcile.Options, error) {
	if len(c.MatchKeys) == 0 {
		return reconcile.Options{}, qaerrors.NewConfigError("config", "match_keys must list at least one column", nil)
	}
	keys := make([]string, len(c.MatchKeys))
	for i, k := range c.MatchKeys {
		keys[i] = strings.TrimSpace(k)
		if keys[i] == "" {
			return reconcile.Options{}, qaerrors.NewConfigError("config", fmt.Sprintf("match_keys[%d] is empty", i), nil)
		}
	}

	if len(c.Fields) == 0 {
		return reconcile.Options{}, qaerrors.NewConfigError("config", "fields must map at least one label", nil)
	}
	fields := make([]fieldmap.Field, 0, len(c.Fields))
	for _, item := range c.Fields {
		label := strings.TrimSpace(fmt.Sprint(item.Key))
		spec, err := fieldmap.FromValue(label, plainValue(item.Value))
		if err != nil {
			return reconcile.Options{}, err
		}
		fields = append(fields, fieldmap.Field{Label: label, Spec: spec})
	}
	mapping, err := fieldmap.NewMapping(fields...)
	if err != nil {
		return reconcile.Options{}, err
	}

	var sides fieldmap.Sides
	if c.Sides != nil {
		sides = fieldmap.Sides{Source: c.Sides.Source, Reference: c.Sides.Reference}
	}
	sides = sides.WithDefaults()
	if err := sides.Validate(); err != nil {
		return reconcile.Options{}, err
	}

	nulls, err := reconcile.ParseNullPolicy(c.Nulls)
	if err != nil {
		return reconcile.Options{}, err
	}

	return reconcile.Options{
		MatchKeys:       keys,
		Fields:          mapping,
		Sides:           sides,
		Nulls:           nulls,
		IncludeUnmapped: c.IncludeUnmapped,
	}, nil
}

// plainValue turns decoded YAML mappings into map[string]any.
func plainValue(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		m := make(map[string]any, len(t))
		for _, item := range t {
			m[fmt.Sprint(item.Key)] = item.Value
		}
		return m
	case map[string]any:
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = e
		}
		return m
	default:
		return v
	}
}

// GenerateComparison builds a starter config comparing each field with the
// same-named column on both sides.
func GenerateComparison(fields, matchKeys []string) (*Comparison, error) {
	if len(fields) == 0 {
		return nil, qaerrors.NewConfigError("config", "at least one field is required", nil)
	}
	if len(matchKeys) == 0 {
		matchKeys = DefaultMatchKeys
	}

	c := &Comparison{MatchKeys: append([]string(nil), matchKeys...)}
	for _, f := range fields {
		c.Fields = append(c.Fields, yaml.MapItem{Key: f, Value: f})
	}
	return c, nil
}

// FromMapping builds a config from a resolved field mapping. Renamed fields
// are written with raw/prod keys.
func FromMapping(mapping fieldmap.Mapping, matchKeys []string) *Comparison {
	if len(matchKeys) == 0 {
		matchKeys = DefaultMatchKeys
	}

	c := &Comparison{MatchKeys: append([]string(nil), matchKeys...)}
	for _, f := range mapping {
		var value any = fieldmap.Resolve(f.Spec, fieldmap.Source)
		if f.Spec.Kind() == fieldmap.Renamed {
			value = yaml.MapSlice{
				{Key: "raw", Value: fieldmap.Resolve(f.Spec, fieldmap.Source)},
				{Key: "prod", Value: fieldmap.Resolve(f.Spec, fieldmap.Reference)},
			}
		}
		c.Fields = append(c.Fields, yaml.MapItem{Key: f.Label, Value: value})
	}
	return c
}

// Marshal encodes the config as YAML, keeping field order.
func (c *Comparison) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("Marshal: encoding comparison config: %w", err)
	}
	return data, nil
}

// WriteComparison writes c to path, creating its directory.
func WriteComparison(path string, c *Comparison) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WriteComparison: creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("WriteComparison: %w", err)
	}
	return nil
}

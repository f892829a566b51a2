package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
)

// Request lists the columns of both tables. Exclude names columns, such as
// match keys and metadata, that must not be proposed as fields.
type Request struct {
	SourceColumns    []string
	ReferenceColumns []string
	Exclude          []string
}

// proposal is one element of the model's JSON answer.
type proposal struct {
	Label string `json:"label"`
	Raw   string `json:"raw"`
	Prod  string `json:"prod"`
}

// Suggest asks model for a field mapping and keeps only proposals whose
// columns exist on their side.
func Suggest(ctx context.Context, model Model, req Request) (fieldmap.Mapping, error) {
	log := logger.FromContext(ctx)

	src := candidates(req.SourceColumns, req.Exclude)
	ref := candidates(req.ReferenceColumns, req.Exclude)
	if len(src) == 0 || len(ref) == 0 {
		return nil, qaerrors.NewConfigError("suggest", "both tables need at least one non-excluded column", nil)
	}

	raw, err := model.Generate(ctx, buildPrompt(src, ref))
	if err != nil {
		return nil, fmt.Errorf("Suggest: %w", err)
	}

	var proposals []proposal
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &proposals); err != nil {
		return nil, fmt.Errorf("Suggest: unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	srcSet := toSet(src)
	refSet := toSet(ref)
	seen := make(map[string]struct{}, len(proposals))

	var fields []fieldmap.Field
	for _, p := range proposals {
		p.Label = strings.TrimSpace(p.Label)
		p.Raw = strings.TrimSpace(p.Raw)
		p.Prod = strings.TrimSpace(p.Prod)

		switch {
		case p.Label == "":
			log.Warn().Str("raw", p.Raw).Str("prod", p.Prod).Msg("Dropping proposal without a label")
			continue
		case !has(srcSet, p.Raw):
			log.Warn().Str("label", p.Label).Str("column", p.Raw).Msg("Dropping proposal with unknown source column")
			continue
		case !has(refSet, p.Prod):
			log.Warn().Str("label", p.Label).Str("column", p.Prod).Msg("Dropping proposal with unknown reference column")
			continue
		case has(seen, p.Label):
			log.Warn().Str("label", p.Label).Msg("Dropping duplicate label")
			continue
		}
		seen[p.Label] = struct{}{}

		spec := fieldmap.NewDirect(p.Raw)
		if p.Raw != p.Prod {
			spec = fieldmap.NewRenamed(p.Raw, p.Prod)
		}
		fields = append(fields, fieldmap.Field{Label: p.Label, Spec: spec})
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("Suggest: model proposed no usable field mappings: %w", qaerrors.ErrEmptyResult)
	}

	log.Info().Int("proposed", len(proposals)).Int("kept", len(fields)).Msg("Suggested field mapping")
	return fieldmap.NewMapping(fields...)
}

func buildPrompt(src, ref []string) string {
	var b strings.Builder
	b.WriteString("You are helping audit an LLM extraction pipeline against a production database.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Pair each column of the RAW table with the column of the PROD table that holds the same concept.\n")
	b.WriteString("- Only pair columns you are confident about; skip columns without a counterpart.\n")
	b.WriteString("- Give each pair a short snake_case label describing the concept.\n\n")

	b.WriteString("RAW columns:\n")
	for _, c := range src {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nPROD columns:\n")
	for _, c := range ref {
		b.WriteString("  - " + c + "\n")
	}

	b.WriteString("\nOutput a JSON array of objects with these fields:\n")
	b.WriteString("- \"label\": string\n")
	b.WriteString("- \"raw\": string (EXACTLY one of the RAW columns)\n")
	b.WriteString("- \"prod\": string (EXACTLY one of the PROD columns)\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

func candidates(cols, exclude []string) []string {
	ex := toSet(exclude)
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !has(ex, c) {
			out = append(out, c)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

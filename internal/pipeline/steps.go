package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/civil"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/artifact"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/flatten"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/reconcile"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

// readTable fetches uri and parses it as CSV.
func readTable(ctx context.Context, uri string, opts artifact.Options) (*table.Table, table.ReadStats, error) {
	data, err := artifact.Fetch(ctx, uri, opts)
	if err != nil {
		return nil, table.ReadStats{}, err
	}
	t, stats, err := table.ReadCSV(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", uri, err)
	}
	return t, stats, nil
}

// LoadInputStep reads the primary input CSV.
type LoadInputStep struct {
	URI     string
	Options artifact.Options
}

func (s *LoadInputStep) Execute(ctx context.Context, state *State) error {
	t, stats, err := readTable(ctx, s.URI, s.Options)
	if err != nil {
		return fmt.Errorf("LoadInputStep: %w", err)
	}
	state.Input = t
	state.Report.InputRowsSkipped += stats.Skipped

	log := logger.FromContext(ctx)
	log.Info().
		Str("input", s.URI).
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Msg("Loaded input")
	return nil
}

// LoadReferenceStep reads the reference CSV of a comparison.
type LoadReferenceStep struct {
	URI     string
	Options artifact.Options
}

func (s *LoadReferenceStep) Execute(ctx context.Context, state *State) error {
	t, stats, err := readTable(ctx, s.URI, s.Options)
	if err != nil {
		return fmt.Errorf("LoadReferenceStep: %w", err)
	}
	state.Reference = t
	state.Report.InputRowsSkipped += stats.Skipped

	log := logger.FromContext(ctx)
	log.Info().
		Str("input", s.URI).
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Msg("Loaded reference")
	return nil
}

// LoadSubjectsStep reads the distinct subject ids of a subject CSV.
type LoadSubjectsStep struct {
	URI     string
	Options artifact.Options
}

func (s *LoadSubjectsStep) Execute(ctx context.Context, state *State) error {
	t, _, err := readTable(ctx, s.URI, s.Options)
	if err != nil {
		return fmt.Errorf("LoadSubjectsStep: %w", err)
	}
	ids, err := warehouse.ReadSubjectIDs(t)
	if err != nil {
		return fmt.Errorf("LoadSubjectsStep: %s: %w", s.URI, err)
	}
	state.SubjectIDs = ids

	log := logger.FromContext(ctx)
	log.Info().Int("subjects", len(ids)).Msg("Loaded subject ids")
	return nil
}

// LoadQueryStep reads a SQL query file.
type LoadQueryStep struct {
	URI     string
	Options artifact.Options
}

func (s *LoadQueryStep) Execute(ctx context.Context, state *State) error {
	data, err := artifact.Fetch(ctx, s.URI, s.Options)
	if err != nil {
		return fmt.Errorf("LoadQueryStep: %w", err)
	}
	state.Query = string(data)
	return nil
}

// FetchStep queries the warehouse for the loaded subject ids. The rows
// become the run's input, or its output when AsOutput is set.
type FetchStep struct {
	Provider  warehouse.Provider
	Schema    string
	CreatedOn civil.Date
	AsOutput  bool
}

func (s *FetchStep) Execute(ctx context.Context, state *State) error {
	req := warehouse.Request{
		Schema:     s.Schema,
		SubjectIDs: state.SubjectIDs,
		CreatedOn:  s.CreatedOn,
		SQL:        state.Query,
	}
	t, err := s.Provider.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("FetchStep: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("rows", t.Len()).
		Int("columns", t.Width()).
		Msg("Fetched rows from warehouse")

	if s.AsOutput {
		state.Output = t
	} else {
		state.Input = t
	}
	return nil
}

// FlattenStep flattens the JSON column of the input and attaches metadata
// columns. Unless Strict, metadata columns the input lacks are left out.
type FlattenStep struct {
	JSONColumn string
	Metadata   []string
	Strict     bool
}

func (s *FlattenStep) Execute(ctx context.Context, state *State) error {
	col := s.JSONColumn
	if col == "" {
		col = flatten.DefaultJSONColumn
	}

	res, err := flatten.Flatten(ctx, state.Input, col)
	if err != nil {
		return fmt.Errorf("FlattenStep: %w", err)
	}
	state.Report.RecordsSkipped += res.RowsSkipped()

	meta := s.Metadata
	if !s.Strict {
		meta = flatten.AvailableColumns(state.Input, meta)
	}
	out, err := flatten.AttachMetadata(ctx, res, state.Input, meta)
	if err != nil {
		return fmt.Errorf("FlattenStep: %w", err)
	}
	state.Output = out

	log := logger.FromContext(ctx)
	log.Info().
		Int("rows_seen", res.RowsSeen).
		Int("rows_skipped", res.RowsSkipped()).
		Int("records", out.Len()).
		Msg("Flattened extractions")
	return nil
}

// ReconcileStep compares the input against the reference.
type ReconcileStep struct {
	Options reconcile.Options
	Summary bool
}

func (s *ReconcileStep) Execute(ctx context.Context, state *State) error {
	res, err := reconcile.Reconcile(ctx, state.Input, state.Reference, s.Options)
	if err != nil {
		return fmt.Errorf("ReconcileStep: %w", err)
	}
	state.Output = res.Table

	rep := state.Report
	rep.Matched = res.Matched
	rep.SourceOnly = res.SourceOnly
	rep.ReferenceOnly = res.ReferenceOnly
	rep.Sides = s.Options.Sides.WithDefaults()

	if s.Summary && !res.Empty() {
		rows, err := reconcile.Summarize(res.Table, res.Labels(), rep.Sides)
		if err != nil {
			return fmt.Errorf("ReconcileStep: %w", err)
		}
		state.Summary = rows
		rep.Summary = rows
	}
	return nil
}

// EncodeStep encodes the output table as Name. An empty output marks the
// run empty and encodes nothing.
type EncodeStep struct {
	Name string
}

func (s *EncodeStep) Execute(ctx context.Context, state *State) error {
	if state.Output == nil || state.Output.Len() == 0 {
		state.Report.Empty = true
		return nil
	}
	data, err := table.EncodeCSV(state.Output)
	if err != nil {
		return fmt.Errorf("EncodeStep: %s: %w", s.Name, err)
	}
	state.Report.Rows = state.Output.Len()
	state.Files = append(state.Files, artifact.File{Name: path.Join(state.Dir, s.Name), Data: data})
	return nil
}

// EncodeSummaryStep encodes the per-field counts as Name.
type EncodeSummaryStep struct {
	Name string
}

func (s *EncodeSummaryStep) Execute(ctx context.Context, state *State) error {
	if state.Report.Empty || len(state.Summary) == 0 {
		return nil
	}
	data, err := table.EncodeCSV(reconcile.SummaryTable(state.Summary, state.Report.Sides))
	if err != nil {
		return fmt.Errorf("EncodeSummaryStep: %s: %w", s.Name, err)
	}
	state.Files = append(state.Files, artifact.File{Name: path.Join(state.Dir, s.Name), Data: data})
	return nil
}

// WriteStep writes every encoded file in one batch.
type WriteStep struct {
	Store artifact.Store
}

func (s *WriteStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	if len(state.Files) == 0 {
		log.Warn().Str("dir", state.Dir).Msg("No rows produced; nothing written")
		return nil
	}
	if err := s.Store.Write(ctx, state.Files); err != nil {
		return fmt.Errorf("WriteStep: %w", err)
	}
	for _, f := range state.Files {
		loc := s.Store.Location(f.Name)
		state.Report.Files = append(state.Report.Files, loc)
		log.Info().Str("path", loc).Msg("Saved artifact")
	}
	return nil
}

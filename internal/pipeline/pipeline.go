// Package pipeline runs the QA workflows: flattening an export, fetching
// sandbox and production rows from a warehouse, and comparing the two.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/artifact"
	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/flatten"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/reconcile"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

// Step is a single stage of a run.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State holds what the steps of one run hand to each other.
type State struct {
	// Dir is the output directory relative to the store root.
	Dir string

	Input      *table.Table
	Reference  *table.Table
	SubjectIDs []string
	Query      string

	Output  *table.Table
	Summary []reconcile.SummaryRow

	// Files are encoded before any of them is written.
	Files []artifact.File

	Report *Report
}

// Report describes the outcome of a run.
type Report struct {
	RunID     string
	Extractor string

	// Rows is the row count of the primary output.
	Rows int
	// InputRowsSkipped counts malformed CSV lines dropped while reading.
	InputRowsSkipped int
	// RecordsSkipped counts rows dropped for malformed JSON.
	RecordsSkipped int

	Matched       int
	SourceOnly    int
	ReferenceOnly int
	Summary       []reconcile.SummaryRow
	Sides         fieldmap.Sides

	// Empty is set when there was nothing to write.
	Empty bool
	// Files are the locations that were written.
	Files []string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Runner builds and executes runs against one output store.
type Runner struct {
	store    artifact.Store
	provider warehouse.Provider
	inputs   artifact.Options
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProvider sets the warehouse used by fetch runs.
func WithProvider(p warehouse.Provider) RunnerOption {
	return func(r *Runner) { r.provider = p }
}

// WithInputOptions configures access to gs:// and s3:// inputs.
func WithInputOptions(opts artifact.Options) RunnerOption {
	return func(r *Runner) { r.inputs = opts }
}

// WithClock replaces time.Now when naming the dated output directory.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner writing to store.
func NewRunner(store artifact.Store, opts ...RunnerOption) *Runner {
	r := &Runner{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FlattenParams configures a flatten run over an exported extraction CSV.
type FlattenParams struct {
	Input      string
	Extractor  string
	JSONColumn string
}

// Flatten flattens the response column of an exported CSV and attaches the
// default metadata columns it has.
func (r *Runner) Flatten(ctx context.Context, p FlattenParams) (*Report, error) {
	return r.run(ctx, p.Extractor,
		&LoadInputStep{URI: p.Input, Options: r.inputs},
		&FlattenStep{JSONColumn: p.JSONColumn, Metadata: flatten.DefaultMetadataColumns},
		&EncodeStep{Name: RawExtractionsFile},
	)
}

// SandboxParams configures a fetch of sandbox extractions.
type SandboxParams struct {
	SubjectCSV string
	Extractor  string
	// CreatedOn filters on creation date when valid.
	CreatedOn civil.Date
}

// Sandbox fetches the extractions of the listed subjects with the
// provider's default query and flattens them.
func (r *Runner) Sandbox(ctx context.Context, p SandboxParams) (*Report, error) {
	if r.provider == nil {
		return nil, qaerrors.NewConfigError("pipeline", "sandbox run needs a warehouse provider", nil)
	}
	return r.run(ctx, p.Extractor,
		&LoadSubjectsStep{URI: p.SubjectCSV, Options: r.inputs},
		&FetchStep{Provider: r.provider, Schema: p.Extractor, CreatedOn: p.CreatedOn},
		&FlattenStep{Metadata: flatten.SandboxMetadataColumns, Strict: true},
		&EncodeStep{Name: RawExtractionsFile},
	)
}

// ProdParams configures a fetch of production rows with a query file.
type ProdParams struct {
	SubjectCSV string
	QueryFile  string
	Extractor  string
}

// Prod runs a query file for the listed subjects and stores the rows as
// returned.
func (r *Runner) Prod(ctx context.Context, p ProdParams) (*Report, error) {
	if r.provider == nil {
		return nil, qaerrors.NewConfigError("pipeline", "prod run needs a warehouse provider", nil)
	}
	return r.run(ctx, p.Extractor,
		&LoadSubjectsStep{URI: p.SubjectCSV, Options: r.inputs},
		&LoadQueryStep{URI: p.QueryFile, Options: r.inputs},
		&FetchStep{Provider: r.provider, Schema: p.Extractor, AsOutput: true},
		&EncodeStep{Name: ProdExtractionsFile},
	)
}

// CompareParams configures a comparison of raw and prod extractions.
type CompareParams struct {
	RawCSV    string
	ProdCSV   string
	Extractor string
	Options   reconcile.Options
	// Summary also writes per-field counts.
	Summary bool
}

// Compare reconciles the raw extractions against the prod extractions.
func (r *Runner) Compare(ctx context.Context, p CompareParams) (*Report, error) {
	steps := []Step{
		&LoadInputStep{URI: p.RawCSV, Options: r.inputs},
		&LoadReferenceStep{URI: p.ProdCSV, Options: r.inputs},
		&ReconcileStep{Options: p.Options, Summary: p.Summary},
		&EncodeStep{Name: ComparisonFile},
	}
	if p.Summary {
		steps = append(steps, &EncodeSummaryStep{Name: SummaryFile})
	}
	return r.run(ctx, p.Extractor, steps...)
}

func (r *Runner) run(ctx context.Context, extractor string, steps ...Step) (*Report, error) {
	if err := validateExtractor(extractor); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id":    runID,
		"extractor": extractor,
	})
	ctx = logger.WithContext(ctx, log)

	state := &State{
		Dir:    path.Join(r.now().Format(DateLayout), extractor),
		Report: &Report{RunID: runID, Extractor: extractor},
	}

	steps = append(steps, &WriteStep{Store: r.store})
	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		return state.Report, err
	}
	return state.Report, nil
}

// validateExtractor rejects names that would escape the dated directory.
func validateExtractor(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return qaerrors.NewConfigError("pipeline", "extractor name is required", nil)
	case strings.ContainsAny(name, `/\`), name == ".", name == "..":
		return qaerrors.NewConfigError("pipeline", fmt.Sprintf("extractor name %q is not a single path segment", name), nil)
	}
	return nil
}

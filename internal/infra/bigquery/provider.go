// Package bigquery is the BigQuery warehouse provider.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

func init() {
	warehouse.Register(warehouse.KindBigQuery, func(ctx context.Context, cfg warehouse.Config) (warehouse.Provider, error) {
		return NewProvider(ctx, cfg.BigQuery)
	})
}

// Provider runs extraction queries against BigQuery. It holds one client for
// all queries of a run.
type Provider struct {
	client *bigquery.Client
	cfg    warehouse.BigQueryConfig
}

// NewProvider creates a BigQuery client for cfg.ProjectID.
func NewProvider(ctx context.Context, cfg warehouse.BigQueryConfig) (*Provider, error) {
	cfg = withDefaults(cfg)
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("NewProvider: project id is required")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewProvider: creating client: %w", err)
	}
	return &Provider{client: client, cfg: cfg}, nil
}

// Close closes the BigQuery client connection.
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Fetch runs req and returns every result row.
func (p *Provider) Fetch(ctx context.Context, req warehouse.Request) (*table.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sql, params := buildQuery(p.cfg, req)
	log := logger.FromContext(ctx)
	log.Info().
		Str("warehouse", string(warehouse.KindBigQuery)).
		Int("subjects", len(req.SubjectIDs)).
		Str("schema", req.Schema).
		Msg("Running warehouse query")

	q := p.client.Query(sql)
	q.Parameters = params
	return FetchWithClient(ctx, q)
}

// FetchWithClient reads every row of q into a table whose columns follow the
// result schema.
func FetchWithClient(ctx context.Context, q *bigquery.Query) (*table.Table, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchWithClient: reading query: %w", err)
	}

	var out *table.Table
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FetchWithClient: iterating: %w", err)
		}
		if out == nil {
			out = table.New(schemaColumns(it.Schema)...)
		}
		out.Append(convertRow(values))
	}

	if out == nil {
		out = table.New(schemaColumns(it.Schema)...)
	}
	return out, nil
}

func schemaColumns(schema bigquery.Schema) []string {
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = f.Name
	}
	return cols
}

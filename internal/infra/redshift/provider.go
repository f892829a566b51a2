// Package redshift is the Redshift warehouse provider. It speaks the
// Postgres wire protocol through lib/pq.
package redshift

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

const (
	defaultPort    = 5439
	defaultSSLMode = "require"
	defaultSchema  = "sandbox"
	defaultTable   = "section_extraction"
)

func init() {
	warehouse.Register(warehouse.KindRedshift, func(ctx context.Context, cfg warehouse.Config) (warehouse.Provider, error) {
		return NewProvider(ctx, cfg.Redshift)
	})
}

// Provider runs extraction queries against Redshift.
type Provider struct {
	db  *sql.DB
	cfg warehouse.RedshiftConfig
}

// NewProvider opens and pings a connection to the cluster.
func NewProvider(ctx context.Context, cfg warehouse.RedshiftConfig) (*Provider, error) {
	cfg = withDefaults(cfg)
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("NewProvider: host and database are required")
	}

	db, err := sql.Open("postgres", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("NewProvider: opening connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewProvider: pinging Redshift: %w", err)
	}
	return NewWithDB(db, cfg), nil
}

// NewWithDB wraps an open database handle.
func NewWithDB(db *sql.DB, cfg warehouse.RedshiftConfig) *Provider {
	return &Provider{db: db, cfg: withDefaults(cfg)}
}

// Close closes the connection pool.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Fetch runs req and returns every result row.
func (p *Provider) Fetch(ctx context.Context, req warehouse.Request) (*table.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query, args := buildQuery(p.cfg, req)
	log := logger.FromContext(ctx)
	log.Info().
		Str("warehouse", string(warehouse.KindRedshift)).
		Int("subjects", len(req.SubjectIDs)).
		Str("schema", req.Schema).
		Msg("Running warehouse query")

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Fetch: running query: %w", err)
	}
	defer rows.Close()

	return ReadRows(rows)
}

// ReadRows drains rows into a table whose columns follow the result set.
func ReadRows(rows *sql.Rows) (*table.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("ReadRows: reading columns: %w", err)
	}

	out := table.New(cols...)
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ReadRows: scanning row: %w", err)
		}
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = table.FormatValue(v)
		}
		out.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ReadRows: iterating: %w", err)
	}
	return out, nil
}

func withDefaults(cfg warehouse.RedshiftConfig) warehouse.RedshiftConfig {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = defaultSSLMode
	}
	if cfg.Schema == "" {
		cfg.Schema = defaultSchema
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	return cfg
}

// connString builds a key/value DSN, quoting every value.
func connString(cfg warehouse.RedshiftConfig) string {
	quote := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quote(cfg.Host), cfg.Port, quote(cfg.User), quote(cfg.Password), quote(cfg.Database), quote(cfg.SSLMode))
}

// buildQuery returns the SQL and positional arguments for req. Subject ids
// take $1..$n; the default query binds schema and date after them.
func buildQuery(cfg warehouse.RedshiftConfig, req warehouse.Request) (string, []any) {
	args := make([]any, 0, len(req.SubjectIDs)+2)
	marks := make([]string, len(req.SubjectIDs))
	for i, id := range req.SubjectIDs {
		args = append(args, id)
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	idList := strings.Join(marks, ",")

	if req.SQL != "" {
		return warehouse.ExpandPlaceholder(req.SQL, idList), args
	}

	cfg = withDefaults(cfg)
	var b strings.Builder
	fmt.Fprintf(&b, `
		SELECT
			*,
			id AS section_extraction_id,
			TO_CHAR(created, 'MM/DD/YYYY') AS created_fmt
		FROM %s.%s
		WHERE subject_id IN (%s)
			AND extraction_schema = $%d`,
		pq.QuoteIdentifier(cfg.Schema), pq.QuoteIdentifier(cfg.Table), idList, len(args)+1)
	args = append(args, req.Schema)

	if req.CreatedOn.IsValid() {
		fmt.Fprintf(&b, `
			AND DATE(created) = $%d`, len(args)+1)
		args = append(args, req.CreatedOn.String())
	}
	b.WriteString(`
		ORDER BY created DESC
	`)
	return b.String(), args
}

// Package warehouse defines how extraction tables are fetched from a data
// warehouse. Concrete providers live under internal/infra and register
// themselves with Register.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/civil"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// SubjectIDsPlaceholder marks where a query file wants the subject id list.
const SubjectIDsPlaceholder = "{{SUBJECT_IDS}}"

// SubjectIDColumn is the column subject id lists are read from.
const SubjectIDColumn = "subject_id"

// Kind identifies a provider implementation.
type Kind string

const (
	KindBigQuery Kind = "bigquery"
	KindRedshift Kind = "redshift"
)

// Provider returns warehouse query results as a table.
type Provider interface {
	// Fetch runs the default sandbox query when req.SQL is empty, and
	// req.SQL with its subject id placeholder bound otherwise.
	Fetch(ctx context.Context, req Request) (*table.Table, error)
	Close() error
}

// Request describes one fetch.
type Request struct {
	// Schema is the extraction schema, e.g. "payer-v2".
	Schema     string
	SubjectIDs []string
	// CreatedOn restricts the default query to one creation date when valid.
	CreatedOn civil.Date
	// SQL is a user query containing SubjectIDsPlaceholder.
	SQL string
}

// Validate checks the parts of a request every provider relies on.
func (r Request) Validate() error {
	if len(r.SubjectIDs) == 0 {
		return qaerrors.NewConfigError("warehouse", "no subject ids to query", nil)
	}
	if r.SQL == "" {
		if r.Schema == "" {
			return qaerrors.NewConfigError("warehouse", "an extraction schema is required for the default query", nil)
		}
		return nil
	}
	if !strings.Contains(r.SQL, SubjectIDsPlaceholder) {
		return qaerrors.NewConfigError("warehouse", fmt.Sprintf("query does not contain the %s placeholder", SubjectIDsPlaceholder), nil)
	}
	return nil
}

// Config selects and configures a provider.
type Config struct {
	Kind     Kind
	BigQuery BigQueryConfig
	Redshift RedshiftConfig
}

// BigQueryConfig locates the section extraction table in BigQuery.
type BigQueryConfig struct {
	ProjectID string
	Dataset   string
	Table     string
}

// RedshiftConfig holds connection settings for a Redshift cluster reached
// over the Postgres wire protocol.
type RedshiftConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Schema   string
	Table    string
}

// Opener builds a provider from its configuration.
type Opener func(ctx context.Context, cfg Config) (Provider, error)

var (
	mu      sync.RWMutex
	openers = make(map[Kind]Opener)
)

// Register makes a provider kind available to Open. It is called from the
// init function of each provider package.
func Register(kind Kind, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	openers[kind] = open
}

// Registered lists the registered kinds in sorted order.
func Registered() []Kind {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]Kind, 0, len(openers))
	for k := range openers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Open builds the provider named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Provider, error) {
	mu.RLock()
	open, ok := openers[cfg.Kind]
	mu.RUnlock()

	if !ok {
		return nil, qaerrors.NewConfigError("warehouse",
			fmt.Sprintf("unknown warehouse %q (registered: %v)", cfg.Kind, Registered()), nil)
	}
	p, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Open: %s: %w", cfg.Kind, err)
	}
	return p, nil
}

// ReadSubjectIDs returns the distinct non-empty subject ids of t in the
// order first seen.
func ReadSubjectIDs(t *table.Table) ([]string, error) {
	ids, err := t.DistinctValues(SubjectIDColumn)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, qaerrors.NewConfigError("warehouse", "subject list contains no subject ids", nil)
	}
	return ids, nil
}

// ExpandPlaceholder replaces every SubjectIDsPlaceholder in sql with the
// provider-specific parameter expression.
func ExpandPlaceholder(sql, expr string) string {
	return strings.ReplaceAll(sql, SubjectIDsPlaceholder, expr)
}

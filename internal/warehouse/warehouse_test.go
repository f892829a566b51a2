package warehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

type stubProvider struct{ kind Kind }

func (s *stubProvider) Fetch(ctx context.Context, req Request) (*table.Table, error) {
	return table.New(SubjectIDColumn), nil
}

func (s *stubProvider) Close() error { return nil }

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "default query", req: Request{Schema: "payer-v2", SubjectIDs: []string{"s1"}}},
		{name: "custom query", req: Request{SubjectIDs: []string{"s1"}, SQL: "SELECT * FROM t WHERE subject_id IN ({{SUBJECT_IDS}})"}},
		{name: "no subjects", req: Request{Schema: "payer-v2"}, wantErr: true},
		{name: "default query without schema", req: Request{SubjectIDs: []string{"s1"}}, wantErr: true},
		{name: "custom query without placeholder", req: Request{SubjectIDs: []string{"s1"}, SQL: "SELECT 1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, qaerrors.IsConfig(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOpen(t *testing.T) {
	const kind Kind = "stub"
	Register(kind, func(ctx context.Context, cfg Config) (Provider, error) {
		return &stubProvider{kind: cfg.Kind}, nil
	})
	Register("broken", func(ctx context.Context, cfg Config) (Provider, error) {
		return nil, errors.New("no credentials")
	})

	p, err := Open(context.Background(), Config{Kind: kind})
	require.NoError(t, err)
	assert.Equal(t, kind, p.(*stubProvider).kind)
	assert.Contains(t, Registered(), kind)

	_, err = Open(context.Background(), Config{Kind: "missing"})
	assert.True(t, qaerrors.IsConfig(err))

	_, err = Open(context.Background(), Config{Kind: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestReadSubjectIDs(t *testing.T) {
	subjects := table.New("subject_id", "note")
	subjects.Append(table.Row{table.Str("s2")})
	subjects.Append(table.Row{table.Null})
	subjects.Append(table.Row{table.Str("s1")})
	subjects.Append(table.Row{table.Str("s2")})

	ids, err := ReadSubjectIDs(subjects)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, ids)

	_, err = ReadSubjectIDs(table.New("id"))
	assert.True(t, qaerrors.IsConfig(err))

	_, err = ReadSubjectIDs(table.New("subject_id"))
	assert.True(t, qaerrors.IsConfig(err))
}

func TestExpandPlaceholder(t *testing.T) {
	got := ExpandPlaceholder("WHERE a IN ({{SUBJECT_IDS}}) OR b IN ({{SUBJECT_IDS}})", "$1,$2")
	assert.Equal(t, "WHERE a IN ($1,$2) OR b IN ($1,$2)", got)
}

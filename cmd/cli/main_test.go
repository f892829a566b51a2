package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/config"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/fieldmap"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/pipeline"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/suggest"
)

type stubModel struct{ response string }

func (m stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.response, nil
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	noEnv := filepath.Join(t.TempDir(), "missing.env")

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", noEnv, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"flatten"},
		{"fetch", "sandbox"},
		{"fetch", "prod"},
		{"compare"},
		{"config", "generate"},
		{"config", "suggest"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestFlattenCommand(t *testing.T) {
	in := t.TempDir()
	resp, err := json.Marshal([]string{`{"payer_name":"Aetna"}`})
	require.NoError(t, err)
	input := writeFile(t, in, "export.csv", "id,subject_id,response\n1,s1,\""+strings.ReplaceAll(string(resp), `"`, `""`)+"\"\n")
	out := t.TempDir()

	stdout, err := execute(t, "--output-root", out, "flatten", "--input", input, "--extractor", "payer-v2")
	require.NoError(t, err)

	written := filepath.Join(out, time.Now().Format(pipeline.DateLayout), "payer-v2", pipeline.RawExtractionsFile)
	assert.Contains(t, stdout, "Saved "+written)

	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Equal(t, "subject_id,id,payer_name\ns1,1,Aetna\n", string(data))
}

func TestFlattenCommand_Empty(t *testing.T) {
	input := writeFile(t, t.TempDir(), "export.csv", "id,response\n1,[]\n")

	stdout, err := execute(t, "--output-root", t.TempDir(), "flatten", "--input", input, "--extractor", "payer-v2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No rows produced for payer-v2; nothing written.")
}

func TestCompareCommand_Summary(t *testing.T) {
	in := t.TempDir()
	raw := writeFile(t, in, "raw.csv", "subject_id,payer_name\ns1,Aetna\ns2,Cigna\n")
	prod := writeFile(t, in, "prod.csv", "subject_id,payer_name\ns1,aetna\ns2,Humana\n")
	cfg := writeFile(t, in, "payer.yaml", "match_keys: [subject_id]\nfields:\n  payer_name: payer_name\n")

	stdout, err := execute(t, "--output-root", t.TempDir(), "compare",
		"--raw-csv", raw, "--prod-csv", prod, "--extractor", "payer-v2", "--config", cfg, "--summary")
	require.NoError(t, err)

	assert.Contains(t, stdout, pipeline.ComparisonFile)
	assert.Contains(t, stdout, pipeline.SummaryFile)
	assert.Contains(t, stdout, "payer_name")
	assert.Contains(t, stdout, "mismatches")
}

func TestCompareCommand_BadConfig(t *testing.T) {
	in := t.TempDir()
	cfg := writeFile(t, in, "bad.yaml", "fields:\n  a: a\n")

	_, err := execute(t, "--output-root", t.TempDir(), "compare",
		"--raw-csv", "raw.csv", "--prod-csv", "prod.csv", "--extractor", "x", "--config", cfg)
	assert.ErrorContains(t, err, "match_keys")
}

func TestConfigGenerateCommand(t *testing.T) {
	output := filepath.Join(t.TempDir(), "payer.yaml")

	stdout, err := execute(t, "config", "generate", "--output", output, "--fields", "payer_name,plan_name")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Config saved to "+output)

	c, err := config.LoadComparisonFile(output)
	require.NoError(t, err)
	opts, err := c.Options()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMatchKeys, opts.MatchKeys)
	assert.Equal(t, []string{"payer_name", "plan_name"}, opts.Fields.Labels())
}

func TestConfigSuggestCommand(t *testing.T) {
	orig := newModel
	t.Cleanup(func() { newModel = orig })
	newModel = func(ctx context.Context, s config.GenAISettings) (suggest.Model, error) {
		return stubModel{response: `[{"label":"payer","raw":"payer_name","prod":"payor"}]`}, nil
	}

	in := t.TempDir()
	raw := writeFile(t, in, "raw.csv", "subject_id,document_id,payer_name\n")
	prod := writeFile(t, in, "prod.csv", "subject_id,document_id,payor\n")
	output := filepath.Join(in, "suggested.yaml")

	stdout, err := execute(t, "config", "suggest", "--raw-csv", raw, "--prod-csv", prod,
		"--output", output, "--match-keys", "subject_id,document_id")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Config with 1 fields saved to "+output)

	c, err := config.LoadComparisonFile(output)
	require.NoError(t, err)
	opts, err := c.Options()
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "document_id"}, opts.MatchKeys)
	assert.Equal(t, fieldmap.NewRenamed("payer_name", "payor"), opts.Fields[0].Spec)
}

func TestFetchSandbox_InvalidCreatedDate(t *testing.T) {
	_, err := execute(t, "fetch", "sandbox", "--subject-csv", "s.csv", "--extractor", "x", "--created", "06/01/2025")
	assert.ErrorContains(t, err, "invalid --created")
}

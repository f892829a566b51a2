package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/artifact"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

// DefaultEnvFiles are loaded by LoadEnvFiles. Earlier files win because
// godotenv never overrides a variable that is already set.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Settings is the process configuration handed to constructors. Nothing
// below cmd reads the environment directly.
type Settings struct {
	LogLevel  string
	LogFormat string

	// OutputRoot is a directory, gs://bucket/prefix or s3://bucket/prefix.
	OutputRoot string

	Warehouse warehouse.Config
	Storage   artifact.Options
	GenAI     GenAISettings
}

// GenAISettings configures the model used by config suggestion. An API key
// selects the Gemini API; otherwise Vertex AI is used with Project and
// Location.
type GenAISettings struct {
	Model    string
	APIKey   string
	Project  string
	Location string
}

// LoadEnvFiles loads the given .env files into the process environment,
// skipping files that do not exist.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("LoadEnvFiles: %s: %w", f, err)
		}
	}
	return nil
}

// LoadSettings resolves settings from defaults, an optional settings file
// and the environment, in increasing order of precedence.
func LoadSettings(settingsFile string) (*Settings, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("output.root", "output")
	v.SetDefault("warehouse", string(warehouse.KindRedshift))
	v.SetDefault("bigquery.dataset", "sandbox")
	v.SetDefault("bigquery.table", "section_extraction")
	v.SetDefault("redshift.port", 5439)
	v.SetDefault("redshift.sslmode", "require")
	v.SetDefault("redshift.schema", "sandbox")
	v.SetDefault("redshift.table", "section_extraction")
	v.SetDefault("aws.region", "us-west-2")
	v.SetDefault("genai.model", "gemini-2.5-flash")
	v.SetDefault("genai.location", "us-central1")

	bindings := map[string][]string{
		"output.root":           {"QA_OUTPUT_ROOT"},
		"bigquery.project":      {"BIGQUERY_PROJECT", "GOOGLE_CLOUD_PROJECT"},
		"s3.path_style":         {"S3_PATH_STYLE"},
		"genai.api_key":         {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"genai.project":         {"GOOGLE_CLOUD_PROJECT"},
		"genai.location":        {"GOOGLE_CLOUD_LOCATION"},
		"aws.access_key_id":     {"AWS_ACCESS_KEY_ID"},
		"aws.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
		"aws.session_token":     {"AWS_SESSION_TOKEN"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("LoadSettings: binding %s: %w", key, err)
		}
	}

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("LoadSettings: reading %s: %w", settingsFile, err)
		}
	}

	s := &Settings{
		LogLevel:   v.GetString("log.level"),
		LogFormat:  v.GetString("log.format"),
		OutputRoot: v.GetString("output.root"),
		Warehouse: warehouse.Config{
			Kind: warehouse.Kind(strings.ToLower(v.GetString("warehouse"))),
			BigQuery: warehouse.BigQueryConfig{
				ProjectID: v.GetString("bigquery.project"),
				Dataset:   v.GetString("bigquery.dataset"),
				Table:     v.GetString("bigquery.table"),
			},
			Redshift: warehouse.RedshiftConfig{
				Host:     v.GetString("redshift.host"),
				Port:     v.GetInt("redshift.port"),
				User:     v.GetString("redshift.user"),
				Password: v.GetString("redshift.password"),
				Database: v.GetString("redshift.database"),
				SSLMode:  v.GetString("redshift.sslmode"),
				Schema:   v.GetString("redshift.schema"),
				Table:    v.GetString("redshift.table"),
			},
		},
		Storage: artifact.Options{S3: artifact.S3Config{
			Region:          v.GetString("aws.region"),
			Endpoint:        v.GetString("s3.endpoint"),
			PathStyle:       v.GetBool("s3.path_style"),
			AccessKeyID:     v.GetString("aws.access_key_id"),
			SecretAccessKey: v.GetString("aws.secret_access_key"),
			SessionToken:    v.GetString("aws.session_token"),
		}},
		GenAI: GenAISettings{
			Model:    v.GetString("genai.model"),
			APIKey:   v.GetString("genai.api_key"),
			Project:  v.GetString("genai.project"),
			Location: v.GetString("genai.location"),
		},
	}
	return s, nil
}

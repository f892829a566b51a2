package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/artifact"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/config"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/pipeline"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/suggest"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/warehouse"
)

// newModel builds the model used by "config suggest".
var newModel = func(ctx context.Context, s config.GenAISettings) (suggest.Model, error) {
	return suggest.NewGemini(ctx, suggest.GeminiConfig{
		Model:    s.Model,
		APIKey:   s.APIKey,
		Project:  s.Project,
		Location: s.Location,
	})
}

type globalFlags struct {
	settingsFile string
	envFiles     []string
	logLevel     string
	outputRoot   string
	warehouse    string
}

type commandContext struct {
	flags *globalFlags

	settingsOnce sync.Once
	settings     *config.Settings
	settingsErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureSettings loads env files and settings once, then applies flag
// overrides.
func (c *commandContext) ensureSettings() (*config.Settings, error) {
	c.settingsOnce.Do(func() {
		if err := config.LoadEnvFiles(c.flags.envFiles...); err != nil {
			c.settingsErr = err
			return
		}
		s, err := config.LoadSettings(strings.TrimSpace(c.flags.settingsFile))
		if err != nil {
			c.settingsErr = err
			return
		}
		if v := strings.TrimSpace(c.flags.logLevel); v != "" {
			s.LogLevel = v
		}
		if v := strings.TrimSpace(c.flags.outputRoot); v != "" {
			s.OutputRoot = v
		}
		if v := strings.TrimSpace(c.flags.warehouse); v != "" {
			s.Warehouse.Kind = warehouse.Kind(strings.ToLower(v))
		}
		c.settings = s
	})
	return c.settings, c.settingsErr
}

// commandCtx returns the command's context carrying the configured logger.
func (c *commandContext) commandCtx(cmd *cobra.Command) (context.Context, *config.Settings, error) {
	s, err := c.ensureSettings()
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.NewWithOptions(logger.Options{
		Level:  s.LogLevel,
		Format: s.LogFormat,
		Out:    cmd.ErrOrStderr(),
	})
	return logger.WithContext(ctx, log), s, nil
}

// withRunner opens the output store, and the warehouse when needed, and
// closes them after fn returns.
func (c *commandContext) withRunner(ctx context.Context, s *config.Settings, needWarehouse bool, fn func(*pipeline.Runner) error) error {
	store, err := artifact.Open(ctx, s.OutputRoot, s.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []pipeline.RunnerOption{pipeline.WithInputOptions(s.Storage)}
	if needWarehouse {
		provider, err := warehouse.Open(ctx, s.Warehouse)
		if err != nil {
			return err
		}
		defer provider.Close()
		opts = append(opts, pipeline.WithProvider(provider))
	}

	return fn(pipeline.NewRunner(store, opts...))
}

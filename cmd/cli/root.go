package main

import (
	"github.com/spf13/cobra"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/config"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "qa",
		Short:         "Extraction QA: flatten, fetch and compare LLM extractions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.settingsFile, "settings", "", "Settings file (YAML); environment variables take precedence")
	pf.StringSliceVar(&flags.envFiles, "env-file", config.DefaultEnvFiles, "Env files to load; earlier files win")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.outputRoot, "output-root", "", "Output directory, gs://bucket/prefix or s3://bucket/prefix")
	pf.StringVar(&flags.warehouse, "warehouse", "", "Warehouse for fetch commands (bigquery, redshift)")

	rootCmd.AddCommand(newFlattenCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newCompareCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

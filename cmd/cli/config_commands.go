package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/artifact"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/config"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/flatten"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/suggest"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Comparison config utilities",
	}

	configCmd.AddCommand(newConfigGenerateCommand())
	configCmd.AddCommand(newConfigSuggestCommand(ctx))

	return configCmd
}

func newConfigGenerateCommand() *cobra.Command {
	var output string
	var fields, matchKeys []string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a starter comparison config for a list of fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.GenerateComparison(fields, matchKeys)
			if err != nil {
				return err
			}
			if err := config.WriteComparison(output, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "YAML file to write")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields to compare, e.g. payer_name,plan_name")
	cmd.Flags().StringSliceVar(&matchKeys, "match-keys", config.DefaultMatchKeys, "Columns that identify a row on both sides")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func newConfigSuggestCommand(ctx *commandContext) *cobra.Command {
	var output, rawCSV, prodCSV string
	var matchKeys []string

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask a language model to propose a comparison config from two CSV headers",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, s, err := ctx.commandCtx(cmd)
			if err != nil {
				return err
			}

			rawCols, err := readHeader(runCtx, rawCSV, s.Storage)
			if err != nil {
				return err
			}
			prodCols, err := readHeader(runCtx, prodCSV, s.Storage)
			if err != nil {
				return err
			}

			model, err := newModel(runCtx, s.GenAI)
			if err != nil {
				return err
			}

			exclude := append(append(append([]string{}, matchKeys...), flatten.DefaultMetadataColumns...), flatten.SandboxMetadataColumns...)
			mapping, err := suggest.Suggest(runCtx, model, suggest.Request{
				SourceColumns:    rawCols,
				ReferenceColumns: prodCols,
				Exclude:          exclude,
			})
			if err != nil {
				return err
			}

			if err := config.WriteComparison(output, config.FromMapping(mapping, matchKeys)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config with %d fields saved to %s; review it before comparing.\n", len(mapping), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "YAML file to write")
	cmd.Flags().StringVar(&rawCSV, "raw-csv", "", "Flattened raw extractions CSV")
	cmd.Flags().StringVar(&prodCSV, "prod-csv", "", "Production rows CSV")
	cmd.Flags().StringSliceVar(&matchKeys, "match-keys", config.DefaultMatchKeys, "Columns that identify a row on both sides")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("raw-csv")
	_ = cmd.MarkFlagRequired("prod-csv")
	return cmd
}

func readHeader(ctx context.Context, uri string, opts artifact.Options) ([]string, error) {
	data, err := artifact.Fetch(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	t, _, err := table.ReadCSV(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return t.Columns(), nil
}

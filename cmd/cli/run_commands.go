package main

import (
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/config"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/flatten"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/pipeline"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/reconcile"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

func newFlattenCommand(ctx *commandContext) *cobra.Command {
	var params pipeline.FlattenParams

	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Flatten the JSON response column of an exported extraction CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, s, err := ctx.commandCtx(cmd)
			if err != nil {
				return err
			}
			return ctx.withRunner(runCtx, s, false, func(r *pipeline.Runner) error {
				rep, err := r.Flatten(runCtx, params)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&params.Input, "input", "", "Exported extraction CSV (path, gs:// or s3:// URI)")
	cmd.Flags().StringVar(&params.Extractor, "extractor", "", "Extraction schema name, e.g. payer-v2")
	cmd.Flags().StringVar(&params.JSONColumn, "json-column", flatten.DefaultJSONColumn, "Column holding the double-encoded response")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("extractor")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch extractions from the warehouse",
	}
	fetchCmd.AddCommand(newFetchSandboxCommand(ctx))
	fetchCmd.AddCommand(newFetchProdCommand(ctx))
	return fetchCmd
}

func newFetchSandboxCommand(ctx *commandContext) *cobra.Command {
	var params pipeline.SandboxParams
	var created string

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Fetch and flatten sandbox extractions for a list of subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if v := strings.TrimSpace(created); v != "" {
				d, err := civil.ParseDate(v)
				if err != nil {
					return fmt.Errorf("invalid --created %q (want YYYY-MM-DD): %w", v, err)
				}
				params.CreatedOn = d
			}

			runCtx, s, err := ctx.commandCtx(cmd)
			if err != nil {
				return err
			}
			return ctx.withRunner(runCtx, s, true, func(r *pipeline.Runner) error {
				rep, err := r.Sandbox(runCtx, params)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&params.SubjectCSV, "subject-csv", "", "CSV with a subject_id column")
	cmd.Flags().StringVar(&params.Extractor, "extractor", "", "Extraction schema, e.g. payer-v2")
	cmd.Flags().StringVar(&created, "created", "", "Only extractions created on this date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("subject-csv")
	_ = cmd.MarkFlagRequired("extractor")
	return cmd
}

func newFetchProdCommand(ctx *commandContext) *cobra.Command {
	var params pipeline.ProdParams

	cmd := &cobra.Command{
		Use:   "prod",
		Short: "Run a query file for a list of subjects and save the rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, s, err := ctx.commandCtx(cmd)
			if err != nil {
				return err
			}
			return ctx.withRunner(runCtx, s, true, func(r *pipeline.Runner) error {
				rep, err := r.Prod(runCtx, params)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&params.SubjectCSV, "subject-csv", "", "CSV with a subject_id column")
	cmd.Flags().StringVar(&params.QueryFile, "query-file", "", "SQL file containing the {{SUBJECT_IDS}} placeholder")
	cmd.Flags().StringVar(&params.Extractor, "extractor", "", "Extraction schema, e.g. payer-v2")
	_ = cmd.MarkFlagRequired("subject-csv")
	_ = cmd.MarkFlagRequired("query-file")
	_ = cmd.MarkFlagRequired("extractor")
	return cmd
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var params pipeline.CompareParams
	var configPath string

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Reconcile raw extractions against production rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			comparison, err := config.LoadComparisonFile(configPath)
			if err != nil {
				return err
			}
			params.Options, err = comparison.Options()
			if err != nil {
				return err
			}

			runCtx, s, err := ctx.commandCtx(cmd)
			if err != nil {
				return err
			}
			return ctx.withRunner(runCtx, s, false, func(r *pipeline.Runner) error {
				rep, err := r.Compare(runCtx, params)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&params.RawCSV, "raw-csv", "", "Flattened raw extractions CSV")
	cmd.Flags().StringVar(&params.ProdCSV, "prod-csv", "", "Production rows CSV")
	cmd.Flags().StringVar(&params.Extractor, "extractor", "", "Extraction schema, e.g. payer-v2")
	cmd.Flags().StringVar(&configPath, "config", "", "Comparison config (YAML)")
	cmd.Flags().BoolVar(&params.Summary, "summary", false, "Also write and print per-field match counts")
	_ = cmd.MarkFlagRequired("raw-csv")
	_ = cmd.MarkFlagRequired("prod-csv")
	_ = cmd.MarkFlagRequired("extractor")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// printReport tells the user what a run wrote.
func printReport(out io.Writer, rep *pipeline.Report) {
	if rep.Empty {
		fmt.Fprintf(out, "No rows produced for %s; nothing written.\n", rep.Extractor)
		return
	}
	for _, f := range rep.Files {
		fmt.Fprintf(out, "Saved %s\n", f)
	}
	if rep.InputRowsSkipped > 0 || rep.RecordsSkipped > 0 {
		fmt.Fprintf(out, "Skipped %d malformed CSV lines and %d malformed responses.\n", rep.InputRowsSkipped, rep.RecordsSkipped)
	}
	if len(rep.Summary) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, table.Render(reconcile.SummaryTable(rep.Summary, rep.Sides)))
	}
}

// Command qa runs the extraction QA workflows: flatten exported extractions,
// fetch sandbox and production rows, compare them, and write comparison
// configs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/xCures/llm-qa-extraction-pipeline/internal/infra/bigquery"
	_ "github.com/xCures/llm-qa-extraction-pipeline/internal/infra/redshift"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

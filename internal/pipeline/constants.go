package pipeline

// Artifact names and layout of a run's output directory,
// <root>/<YYYY-MM-DD>/<extractor>/<file>.
const (
	// RawExtractionsFile holds flattened extractions.
	RawExtractionsFile = "raw_extractions.csv"

	// ProdExtractionsFile holds rows fetched with a user query.
	ProdExtractionsFile = "prod_extractions.csv"

	// ComparisonFile holds the reconciled table.
	ComparisonFile = "final_comparison.csv"

	// SummaryFile holds per-field verdict counts.
	SummaryFile = "summary_counts.csv"

	// DateLayout names the dated output directory.
	DateLayout = "2006-01-02"
)

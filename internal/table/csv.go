package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
)

// ReadStats reports what ReadCSV kept and dropped.
type ReadStats struct {
	Rows    int
	Skipped int
}

// ReadCSV parses a comma-separated table with a header line. Malformed rows
// (unbalanced quotes, more fields than the header) are logged and skipped
// rather than aborting the read; short rows are padded with nulls. Empty
// cells are read as null.
func ReadCSV(ctx context.Context, r io.Reader) (*Table, ReadStats, error) {
	log := logger.FromContext(ctx)
	var stats ReadStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return New(), stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("ReadCSV: reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := New(dedupeHeader(header)...)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Skipped++
				log.Warn().Int("line", perr.StartLine).Err(perr.Err).Msg("Skipping malformed CSV row")
				continue
			}
			return nil, stats, fmt.Errorf("ReadCSV: reading row: %w", err)
		}
		if len(record) > t.Width() {
			stats.Skipped++
			line, _ := cr.FieldPos(0)
			log.Warn().
				Int("line", line).
				Int("fields", len(record)).
				Int("expected", t.Width()).
				Msg("Skipping CSV row with too many fields")
			continue
		}

		row := make(Row, len(record))
		for j, v := range record {
			if v != "" {
				row[j] = Str(v)
			}
		}
		t.Append(row)
		stats.Rows++
	}

	return t, stats, nil
}

// dedupeHeader renames repeated column names to name.1, name.2, ...
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	taken := make(map[string]bool, len(header))
	for _, h := range header {
		taken[h] = true
	}
	for i, h := range header {
		n, dup := seen[h]
		seen[h] = n + 1
		if !dup {
			out[i] = h
			continue
		}
		name := h + "." + strconv.Itoa(n)
		for taken[name] {
			n++
			name = h + "." + strconv.Itoa(n)
		}
		seen[h] = n + 1
		taken[name] = true
		out[i] = name
	}
	return out
}

// WriteCSV writes the header and every row; null cells are written empty.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("WriteCSV: writing header: %w", err)
	}

	record := make([]string, len(t.columns))
	for i := range t.rows {
		for j := range t.columns {
			record[j] = t.At(i, j).String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteCSV: writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flushing: %w", err)
	}
	return nil
}

// EncodeCSV renders t as CSV bytes.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

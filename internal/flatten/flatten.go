// Package flatten expands a column of double-encoded JSON (an array whose
// elements are JSON strings, each holding one extracted object) into one flat
// record per object, and reattaches the metadata of the row it came from.
package flatten

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
	"github.com/xCures/llm-qa-extraction-pipeline/internal/table"
)

// DefaultJSONColumn is the column holding the extractor response.
const DefaultJSONColumn = "response"

// maxLoggedValue bounds how much of an offending cell is logged.
const maxLoggedValue = 200

// Result is a flattened table plus the lineage of each of its rows.
type Result struct {
	// Table holds the union of all keys seen, in discovery order.
	Table *table.Table
	// Origins[i] is the source row index of Table row i.
	Origins []int
	// Errors lists the rows that were skipped because their cell was malformed.
	Errors []*qaerrors.ParseError
	// RowsSeen counts source rows with a non-null cell.
	RowsSeen int
}

// RowsSkipped is the number of source rows dropped for malformed JSON.
func (r *Result) RowsSkipped() int {
	return len(r.Errors)
}

// Empty reports whether no record was produced.
func (r *Result) Empty() bool {
	return r.Table.Len() == 0
}

type field struct {
	key   string
	value table.Cell
}

type record []field

// Flatten decodes jsonColumn of every row of src. Rows with a null cell
// contribute nothing. A malformed cell is logged and recorded in
// Result.Errors; that row contributes nothing and the batch continues.
func Flatten(ctx context.Context, src *table.Table, jsonColumn string) (*Result, error) {
	log := logger.FromContext(ctx)

	j, ok := src.Index(jsonColumn)
	if !ok {
		return nil, qaerrors.MissingColumn("flatten", "source", jsonColumn)
	}

	res := &Result{Table: table.New()}
	for i := 0; i < src.Len(); i++ {
		cell := src.At(i, j)
		if !cell.Valid {
			continue
		}
		res.RowsSeen++

		records, perr := decodeCell(i, cell.Value)
		if perr != nil {
			log.Warn().
				Int("row", i).
				Str("stage", string(perr.Stage)).
				Int("element", perr.Index).
				Str("value", truncate(perr.Value)).
				Err(perr.Err).
				Msg("Skipping row with malformed response")
			res.Errors = append(res.Errors, perr)
			continue
		}

		for _, rec := range records {
			res.add(rec, i)
		}
	}

	log.Debug().
		Int("rows_seen", res.RowsSeen).
		Int("rows_skipped", res.RowsSkipped()).
		Int("records", res.Table.Len()).
		Int("columns", res.Table.Width()).
		Msg("Flattened response column")

	return res, nil
}

func (r *Result) add(rec record, origin int) {
	row := make(table.Row, r.Table.Width(), r.Table.Width()+len(rec))
	for _, f := range rec {
		j := r.Table.AddColumn(f.key)
		for len(row) <= j {
			row = append(row, table.Null)
		}
		row[j] = f.value
	}
	r.Table.Append(row)
	r.Origins = append(r.Origins, origin)
}

// decodeCell runs the two decode passes over one cell: first the outer
// array, then each element as a JSON string holding an object.
func decodeCell(row int, raw string) ([]record, *qaerrors.ParseError) {
	if strings.TrimSpace(raw) == "null" {
		return nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, &qaerrors.ParseError{Row: row, Stage: qaerrors.StageArray, Index: -1, Value: raw, Err: err}
	}

	records := make([]record, 0, len(elems))
	for k, elem := range elems {
		var inner string
		if err := json.Unmarshal(elem, &inner); err != nil {
			return nil, &qaerrors.ParseError{Row: row, Stage: qaerrors.StageElement, Index: k, Value: string(elem), Err: err}
		}

		rec, err := decodeObject(inner)
		if err != nil {
			return nil, &qaerrors.ParseError{Row: row, Stage: qaerrors.StageObject, Index: k, Value: inner, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

var errNotObject = errors.New("value is not a JSON object")

// decodeObject parses one JSON object keeping its key order. Nested objects
// become dotted keys; arrays are kept as compact JSON text.
func decodeObject(s string) (record, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}

	var rec record
	if err := readObject(dec, "", &rec); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, errors.New("unexpected data after JSON object")
		}
		return nil, err
	}
	return rec, nil
}

// readObject consumes object members up to and including the closing brace.
func readObject(dec *json.Decoder, prefix string, rec *record) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if err := readValue(dec, prefix+key, rec); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}

func readValue(dec *json.Decoder, name string, rec *record) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return readObject(dec, name+".", rec)
		case '[':
			arr, err := readArray(dec)
			if err != nil {
				return err
			}
			b, err := json.Marshal(arr)
			if err != nil {
				return err
			}
			*rec = append(*rec, field{key: name, value: table.Str(string(b))})
			return nil
		default:
			return fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		*rec = append(*rec, field{key: name, value: table.FormatValue(t)})
		return nil
	}
}

// readArray consumes array elements up to and including the closing bracket.
func readArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := readAny(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	_, err := dec.Token()
	return out, err
}

func readAny(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '[':
		return readArray(dec)
	case '{':
		obj := map[string]any{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			v, err := readAny(dec)
			if err != nil {
				return nil, err
			}
			obj[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
}

func truncate(s string) string {
	if len(s) <= maxLoggedValue {
		return s
	}
	return s[:maxLoggedValue] + "..."
}

// Package codec encodes and decodes rows for the two content types the
// data-path engine negotiates over: JSON (default) and CSV (spec.md §6).
package codec

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
)

// ContentType identifies a negotiated representation.
type ContentType string

const (
	JSON ContentType = "application/json"
	CSV  ContentType = "text/csv"
)

// Row is one record, keyed by output/column name; the same shape used by
// internal/sqlgen's result rows and internal/urlgrammar's write payloads.
type Row map[string]interface{}

// EncodeRows writes rows to w in the given content type. columns fixes the
// output column order; for JSON it only affects CSV's header row, since a
// JSON object is unordered, but it still governs which keys are emitted.
func EncodeRows(w io.Writer, ct ContentType, columns []string, rows []Row) error {
	switch ct {
	case JSON:
		return encodeJSON(w, columns, rows)
	case CSV:
		return encodeCSV(w, columns, rows)
	default:
		return apierr.New(apierr.BadSyntax, "unsupported output content type %q", ct)
	}
}

func encodeJSON(w io.Writer, columns []string, rows []Row) error {
	if _, err := w.Write([]byte{'['}); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for i, row := range rows {
		if i > 0 {
			if _, err := w.Write([]byte{','}); err != nil {
				return err
			}
		}
		projected := make(Row, len(columns))
		for _, c := range columns {
			projected[c] = row[c]
		}
		if err := enc.Encode(projected); err != nil {
			return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to encode row as JSON")
		}
	}
	_, err := w.Write([]byte{']'})
	return err
}

func encodeCSV(w io.Writer, columns []string, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(columns); err != nil {
		return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to write CSV header")
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			record[i] = stringify(row[c])
		}
		if err := cw.Write(record); err != nil {
			return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to write CSV row")
		}
	}
	cw.Flush()
	return cw.Error()
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// DecodeRows reads a write payload from r in the given content type.
// Unknown columns are not rejected here — RenderInsert rejects them against
// the table's actual column set, since only the catalog model knows what's
// writable.
func DecodeRows(r io.Reader, ct ContentType) ([]Row, error) {
	switch ct {
	case JSON:
		return decodeJSON(r)
	case CSV:
		return decodeCSV(r)
	default:
		return nil, apierr.New(apierr.BadSyntax, "unsupported input content type %q", ct)
	}
}

func decodeJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&rows); err != nil {
		return nil, apierr.Wrap(apierr.BadSyntax, err, "malformed JSON row set")
	}
	return rows, nil
}

func decodeCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.BadSyntax, err, "malformed CSV header")
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierr.Wrap(apierr.BadSyntax, err, "malformed CSV row")
		}
		if len(record) != len(header) {
			return nil, apierr.New(apierr.BadSyntax, "CSV row has %d fields, header has %d", len(record), len(header))
		}
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

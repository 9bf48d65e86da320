package sqlgen

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/jackc/pgx/v5"
)

// Row is one decoded output row, keyed by its projected output name.
type Row = map[string]interface{}

// Drain runs sel against tx and buffers every row into memory, decoding each
// column by its pgx-reported OID into a Go value keyed by output name.
//
// Buffering fully inside the transaction is the deferred-commit discipline
// spec.md §9 requires: a query that fails on row 10,000 must still roll back
// cleanly with no bytes written to the client, which is only possible if the
// whole result set is drained and checked before the caller commits and
// begins streaming the response body.
func Drain(ctx context.Context, tx pgx.Tx, sel *Select) ([]Row, error) {
	rows, err := tx.Query(ctx, sel.SQL, sel.Args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "query failed")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.Name)
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "failed to decode row")
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "query failed while reading rows")
	}

	return out, nil
}

// DrainWrite runs w (an INSERT ... RETURNING statement) against tx
// and buffers its returned rows the same way Drain does for reads.
func DrainWrite(ctx context.Context, tx pgx.Tx, w *Write) ([]Row, error) {
	return Drain(ctx, tx, &Select{SQL: w.SQL, Args: w.Args})
}

// StreamJSON writes rows to out as a JSON array, one row at a time, so a
// large result set never has to be materialized as a single encoded buffer.
// Callers invoke this only after the owning transaction has committed.
func StreamJSON(out io.Writer, rows []Row) error {
	if _, err := out.Write([]byte{'['}); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for i, row := range rows {
		if i > 0 {
			if _, err := out.Write([]byte{','}); err != nil {
				return err
			}
		}
		if err := enc.Encode(row); err != nil {
			return apierr.Wrap(apierr.ServiceUnavailable, err, "failed to encode row")
		}
	}
	_, err := out.Write([]byte{']'})
	return err
}

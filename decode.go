package csvpipe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
)

// Decoder turns a delimited byte stream into a lazy sequence of typed rows.
//
// The sequence yielded by Decode is single-pass and computed on demand:
// memory use is constant regardless of file size. Decoding the same byte
// stream with the same schema always yields the same sequence.
type Decoder struct {
	schema    *Schema
	delimiter rune
	hasHeader bool
}

// NewDecoder creates a Decoder for the given schema with the default
// delimiter (';') and a required header row.
func NewDecoder(schema *Schema) *Decoder {
	return &Decoder{
		schema:    schema,
		delimiter: DefaultDelimiter,
		hasHeader: true,
	}
}

// WithDelimiter overrides the field delimiter. Values other than rune(0)
// take effect.
func (d *Decoder) WithDelimiter(delim rune) *Decoder {
	if delim != 0 {
		d.delimiter = delim
	}
	return d
}

// WithHeader controls whether the first record is consumed as a header.
// When disabled, columns map positionally to the schema's field order.
func (d *Decoder) WithHeader(has bool) *Decoder {
	d.hasHeader = has
	return d
}

// Decode reads the stream record by record, honoring CSV quoting rules, and
// yields typed rows.
//
// Errors yielded through the sequence follow the pipeline's taxonomy:
// a *RowError is non-fatal (the row is skipped, decoding continues); any
// other error is fatal and is the last element of the sequence. In
// particular, a header whose field set differs from the schema yields a
// single *SchemaMismatchError before any data row.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		cr := csv.NewReader(r)
		cr.Comma = d.delimiter
		cr.FieldsPerRecord = -1

		order := d.schema.Names()
		if d.hasHeader {
			header, err := cr.Read()
			if err == io.EOF {
				yield(Row{}, &SchemaMismatchError{Missing: d.schema.Names()})
				return
			}
			if err != nil {
				yield(Row{}, fmt.Errorf("reading header: %w", err))
				return
			}
			if mismatch := d.checkHeader(header); mismatch != nil {
				yield(Row{}, mismatch)
				return
			}
			order = header
		}

		var index int64
		for {
			if ctx.Err() != nil {
				return
			}

			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			index++
			if err != nil {
				// A CSV syntax error is positional: report it against
				// this row and keep going.
				if !yield(Row{}, &RowError{Index: index, Raw: cloneRecord(record), Err: err}) {
					return
				}
				continue
			}

			row, rowErr := d.decodeRecord(index, order, record)
			if rowErr != nil {
				if !yield(Row{}, rowErr) {
					return
				}
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// checkHeader verifies the header's field set against the schema. Column
// order may differ from schema order; only the set must match.
func (d *Decoder) checkHeader(header []string) *SchemaMismatchError {
	seen := make(map[string]bool, len(header))
	var extra []string
	for _, name := range header {
		if _, ok := d.schema.Field(name); !ok {
			extra = append(extra, name)
			continue
		}
		if seen[name] {
			extra = append(extra, name)
			continue
		}
		seen[name] = true
	}

	var missing []string
	for _, name := range d.schema.Names() {
		if !seen[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return &SchemaMismatchError{Missing: missing, Extra: extra}
}

// decodeRecord zips one record against the header-derived field order and
// coerces each cell to its schema type.
func (d *Decoder) decodeRecord(index int64, order, record []string) (Row, *RowError) {
	if len(record) != len(order) {
		return Row{}, &RowError{
			Index: index,
			Raw:   cloneRecord(record),
			Err:   fmt.Errorf("expected %d columns, got %d", len(order), len(record)),
		}
	}

	values := make(map[string]Value, len(order))
	for i, name := range order {
		field, ok := d.schema.Field(name)
		if !ok {
			// Unreachable when the header passed checkHeader; guards the
			// headerless path against a short schema.
			return Row{}, &RowError{
				Index: index,
				Field: name,
				Raw:   cloneRecord(record),
				Err:   fmt.Errorf("no schema field for column %q", name),
			}
		}

		v, err := coerce(field, record[i])
		if err != nil {
			return Row{}, &RowError{
				Index: index,
				Field: name,
				Raw:   cloneRecord(record),
				Err:   err,
			}
		}
		values[name] = v
	}

	return Row{index: index, values: values}, nil
}

func cloneRecord(record []string) []string {
	if record == nil {
		return nil
	}
	out := make([]string, len(record))
	copy(out, record)
	return out
}

package csvpipe

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType identifies how a raw column value is coerced.
type FieldType string

const (
	TypeInt     FieldType = "int"
	TypeString  FieldType = "string"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
	TypeTime    FieldType = "time"
)

// Field declares one column of a schema.
//
// Layout is the explicit time format (in Go reference-time notation) used to
// parse TypeDate and TypeTime fields. It is required for those types; there
// is no implicit or locale-dependent parsing.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	Layout   string
}

// Schema is an ordered, named, typed field declaration. It validates header
// rows and drives per-field coercion in the decoder.
//
// A Schema is immutable after construction: accessors return copies, and
// there is no way to add or remove fields from an existing Schema.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a Schema from an ordered list of fields.
//
// It returns an error when the list is empty, a field name is empty or
// duplicated, a field has an unknown type, or a date/time field is missing
// its Layout.
func NewSchema(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema: at least one field is required")
	}

	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: field %d has an empty name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field name %q", f.Name)
		}

		switch f.Type {
		case TypeInt, TypeString, TypeDecimal:
		case TypeDate, TypeTime:
			if f.Layout == "" {
				return nil, fmt.Errorf("schema: field %q has type %s but no layout", f.Name, f.Type)
			}
		default:
			return nil, fmt.Errorf("schema: field %q has unknown type %q", f.Name, f.Type)
		}

		s.index[f.Name] = i
	}

	return s, nil
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the field declarations in schema order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field declaration by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Value is a single typed cell of a row. Exactly one of the value fields is
// meaningful, selected by Type; Null reports an empty cell on a nullable
// field.
type Value struct {
	Type FieldType
	Null bool

	Int  int64
	Str  string
	Dec  decimal.Decimal
	Time time.Time
}

// String renders the value for diagnostics and grouping keys. Null values
// render as the empty string; times render in RFC 3339.
func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeDecimal:
		return v.Dec.String()
	case TypeDate, TypeTime:
		return v.Time.Format(time.RFC3339)
	default:
		return v.Str
	}
}

// Row is a typed row produced by the decoder: field name to coerced value,
// plus the 1-based index of the data row it came from (the header does not
// count). Rows are never mutated after creation.
type Row struct {
	index  int64
	values map[string]Value
}

// NewRow builds a typed row directly, for storage implementations and row
// sources that bypass the decoder. The values map is copied.
func NewRow(index int64, values map[string]Value) Row {
	copied := make(map[string]Value, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Row{index: index, values: copied}
}

// Index returns the 1-based data-row index.
func (r Row) Index() int64 { return r.index }

// Len returns the number of values in the row.
func (r Row) Len() int { return len(r.values) }

// Value looks up a cell by field name.
func (r Row) Value(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// coerce converts one raw cell according to its field declaration.
func coerce(f Field, raw string) (Value, error) {
	if raw == "" {
		if !f.Nullable {
			return Value{}, errors.New("empty value for non-nullable field")
		}
		return Value{Type: f.Type, Null: true}, nil
	}

	switch f.Type {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as int: %w", raw, err)
		}
		return Value{Type: f.Type, Int: n}, nil

	case TypeString:
		return Value{Type: f.Type, Str: raw}, nil

	case TypeDecimal:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as decimal: %w", raw, err)
		}
		return Value{Type: f.Type, Dec: d}, nil

	case TypeDate, TypeTime:
		t, err := time.Parse(f.Layout, raw)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q with layout %q: %w", raw, f.Layout, err)
		}
		return Value{Type: f.Type, Time: t}, nil

	default:
		return Value{}, fmt.Errorf("unknown field type %q", f.Type)
	}
}

// Package sqlstore persists typed rows into a relational table through
// database/sql. The INSERT statement is derived from the schema once at
// construction; each WriteBatch issues a single multi-row INSERT.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ingestkit/csvpipe"
)

// Placeholder selects the bind-parameter style of the target driver.
type Placeholder int

const (
	// Question uses "?" placeholders (MySQL, SQLite).
	Question Placeholder = iota
	// Dollar uses "$1".."$n" placeholders (PostgreSQL).
	Dollar
)

// Store writes batches of typed rows into a single table. It implements
// csvpipe.Storage, and advertises a batch size derived from the driver's
// bind-parameter budget via csvpipe.BatchSize.
type Store struct {
	db          *sql.DB
	schema      *csvpipe.Schema
	table       string
	placeholder Placeholder
	paramLimit  int

	columns string // quoted column list, built once
}

// New creates a Store writing to table with columns matching the schema's
// field names, in schema order.
func New(db *sql.DB, table string, schema *csvpipe.Schema) *Store {
	names := schema.Names()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}

	return &Store{
		db:         db,
		schema:     schema,
		table:      quoteIdent(table),
		paramLimit: 65535,
		columns:    strings.Join(quoted, ", "),
	}
}

// WithPlaceholder sets the bind-parameter style. The default is Question.
func (s *Store) WithPlaceholder(p Placeholder) *Store {
	s.placeholder = p
	return s
}

// WithParamLimit overrides the driver's bind-parameter budget used to derive
// the advertised batch size. Values less than 1 are ignored.
func (s *Store) WithParamLimit(n int) *Store {
	if n >= 1 {
		s.paramLimit = n
	}
	return s
}

var (
	_ csvpipe.Storage   = (*Store)(nil)
	_ csvpipe.BatchSize = (*Store)(nil)
	_ csvpipe.Opener    = (*Store)(nil)
)

// Open verifies the database is reachable before any batch is written.
func (s *Store) Open(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// BatchSize keeps each INSERT within the driver's bind-parameter budget.
func (s *Store) BatchSize() int {
	n := s.paramLimit / s.schema.Len()
	if n < 1 {
		return 1
	}
	return n
}

// WriteBatch issues one multi-row INSERT for the batch. Values bind in
// schema field order; decimals bind as their exact string representation so
// the driver never sees a float.
func (s *Store) WriteBatch(ctx context.Context, rows []csvpipe.Row) error {
	if len(rows) == 0 {
		return nil
	}

	fields := s.schema.Fields()
	args := make([]any, 0, len(rows)*len(fields))
	tuples := make([]string, 0, len(rows))

	for i, row := range rows {
		marks := make([]string, len(fields))
		for j, f := range fields {
			v, ok := row.Value(f.Name)
			if !ok {
				return fmt.Errorf("row %d has no value for field %q", row.Index(), f.Name)
			}
			args = append(args, bindValue(v))

			switch s.placeholder {
			case Dollar:
				marks[j] = fmt.Sprintf("$%d", i*len(fields)+j+1)
			default:
				marks[j] = "?"
			}
		}
		tuples = append(tuples, "("+strings.Join(marks, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, s.columns, strings.Join(tuples, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d rows into %s: %w", len(rows), s.table, err)
	}
	return nil
}

// bindValue converts a typed cell to a driver-friendly argument.
func bindValue(v csvpipe.Value) any {
	if v.Null {
		return nil
	}
	switch v.Type {
	case csvpipe.TypeInt:
		return v.Int
	case csvpipe.TypeDecimal:
		return v.Dec.String()
	case csvpipe.TypeDate, csvpipe.TypeTime:
		return v.Time
	default:
		return v.Str
	}
}

// quoteIdent double-quotes an identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

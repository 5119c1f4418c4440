package csvpipe

import (
	"fmt"
	"strings"
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	// FetchNotFound means the remote resource does not exist.
	FetchNotFound FetchErrorKind = "not_found"
	// FetchTransportFailure covers network and auth failures, and any
	// unexpected response status.
	FetchTransportFailure FetchErrorKind = "transport_failure"
	// FetchDecodeFailure means decompression failed on malformed input.
	FetchDecodeFailure FetchErrorKind = "decode_failure"
)

// FetchError is a fatal failure in the fetch stage. Status carries the
// response status code when one was received, for diagnostics.
type FetchError struct {
	Kind    FetchErrorKind
	Locator string
	Status  int
	Err     error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Locator, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaMismatchError is fatal: the header row's field set differs from the
// schema's. It aborts decoding before any data row is yielded.
type SchemaMismatchError struct {
	// Missing lists schema fields absent from the header.
	Missing []string
	// Extra lists header columns not declared in the schema.
	Extra []string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected fields "+strings.Join(e.Extra, ", "))
	}
	if len(parts) == 0 {
		return "schema mismatch"
	}
	return "schema mismatch: " + strings.Join(parts, "; ")
}

// RowError is a non-fatal, per-row failure: the row is recorded in the
// report and skipped, and decoding continues with the next row.
type RowError struct {
	// Index is the 1-based data-row index.
	Index int64
	// Field is the field whose coercion failed, when one is known.
	Field string
	// Raw holds the row's raw column values for diagnostics.
	Raw []string
	Err error
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: field %q: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// BatchCommitError is a non-fatal, per-batch failure: the storage
// collaborator rejected one batch. The rows it covers are recorded as
// rejected and ingestion continues with the next batch.
type BatchCommitError struct {
	// First and Last are the 1-based data-row indices spanned by the batch.
	First int64
	Last  int64
	// Rows is the number of rows in the failed batch.
	Rows int
	Err  error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch commit rows %d-%d (%d rows): %v", e.First, e.Last, e.Rows, e.Err)
}

func (e *BatchCommitError) Unwrap() error { return e.Err }

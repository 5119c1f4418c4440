package csvpipe

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status is the terminal disposition of an ingestion run.
type Status string

const (
	// StatusRunning is the status of a report whose pipeline has not
	// finished yet.
	StatusRunning Status = "running"
	// StatusCompleted means the row sequence was exhausted and the final
	// batch flushed.
	StatusCompleted Status = "completed"
	// StatusIncomplete means the run was cancelled between batches; rows
	// committed before cancellation stay committed.
	StatusIncomplete Status = "incomplete"
	// StatusFailed means a fatal error aborted the run.
	StatusFailed Status = "failed"
)

// Report accumulates the outcome of one ingestion run. Counter access is
// atomic so progress hooks can read a live report safely; error lists are
// guarded by a mutex. After the pipeline returns, the report is no longer
// mutated.
type Report struct {
	id string

	read      atomic.Int64
	persisted atomic.Int64
	rejected  atomic.Int64

	mu        sync.Mutex
	status    Status
	rowErrs   []*RowError
	batchErrs []*BatchCommitError
}

// NewReport creates an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{id: uuid.NewString(), status: StatusRunning}
}

// ID returns the run's unique identifier.
func (r *Report) ID() string { return r.id }

// Read returns the number of data rows read from the stream, including rows
// that were later rejected.
func (r *Report) Read() int64 { return r.read.Load() }

// Persisted returns the number of rows committed by the storage collaborator.
func (r *Report) Persisted() int64 { return r.persisted.Load() }

// Rejected returns the number of rows not persisted: rows rejected at decode
// time plus rows covered by failed batch commits. The invariant
// Persisted() + Rejected() == Read() holds once the run has finished.
func (r *Report) Rejected() int64 { return r.rejected.Load() }

// Status returns the run's disposition.
func (r *Report) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RowErrors returns a copy of the per-row errors in the order they occurred.
func (r *Report) RowErrors() []*RowError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RowError, len(r.rowErrs))
	copy(out, r.rowErrs)
	return out
}

// BatchErrors returns a copy of the batch commit errors in the order they
// occurred.
func (r *Report) BatchErrors() []*BatchCommitError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*BatchCommitError, len(r.batchErrs))
	copy(out, r.batchErrs)
	return out
}

// Fatal reports whether the run should be treated as a failure by callers
// that map reports to exit codes: either the pipeline failed outright or at
// least one batch commit was lost.
func (r *Report) Fatal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusFailed || len(r.batchErrs) > 0
}

func (r *Report) incRead(n int64)      { r.read.Add(n) }
func (r *Report) incRejected(n int64)  { r.rejected.Add(n) }
func (r *Report) incPersisted(n int64) int64 { return r.persisted.Add(n) }

func (r *Report) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func (r *Report) addRowError(e *RowError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowErrs = append(r.rowErrs, e)
}

func (r *Report) addBatchError(e *BatchCommitError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchErrs = append(r.batchErrs, e)
}

// LogValue implements slog.LogValuer for structured logging.
func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.id),
		slog.String("status", string(r.Status())),
		slog.Int64("read", r.Read()),
		slog.Int64("persisted", r.Persisted()),
		slog.Int64("rejected", r.Rejected()),
		slog.Int("row_errors", len(r.RowErrors())),
		slog.Int("batch_errors", len(r.BatchErrors())),
	)
}

type rowErrorJSON struct {
	Index int64    `json:"index"`
	Field string   `json:"field,omitempty"`
	Raw   []string `json:"raw,omitempty"`
	Error string   `json:"error"`
}

type batchErrorJSON struct {
	First int64  `json:"first"`
	Last  int64  `json:"last"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}

type reportJSON struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Read        int64            `json:"read"`
	Persisted   int64            `json:"persisted"`
	Rejected    int64            `json:"rejected"`
	RowErrors   []rowErrorJSON   `json:"row_errors,omitempty"`
	BatchErrors []batchErrorJSON `json:"batch_errors,omitempty"`
}

// MarshalJSON implements json.Marshaler. Error causes are flattened to their
// messages; raw row values are preserved so a corrected subset can be
// re-ingested.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		ID:        r.id,
		Status:    r.Status(),
		Read:      r.Read(),
		Persisted: r.Persisted(),
		Rejected:  r.Rejected(),
	}
	for _, e := range r.RowErrors() {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		out.RowErrors = append(out.RowErrors, rowErrorJSON{
			Index: e.Index,
			Field: e.Field,
			Raw:   e.Raw,
			Error: msg,
		})
	}
	for _, e := range r.BatchErrors() {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		out.BatchErrors = append(out.BatchErrors, batchErrorJSON{
			First: e.First,
			Last:  e.Last,
			Rows:  e.Rows,
			Error: msg,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Error causes come back as opaque
// messages; the counters, status, and row spans round-trip exactly.
func (r *Report) UnmarshalJSON(data []byte) error {
	var in reportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	r.id = in.ID
	r.read.Store(in.Read)
	r.persisted.Store(in.Persisted)
	r.rejected.Store(in.Rejected)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = in.Status
	r.rowErrs = nil
	r.batchErrs = nil
	for _, e := range in.RowErrors {
		r.rowErrs = append(r.rowErrs, &RowError{
			Index: e.Index,
			Field: e.Field,
			Raw:   e.Raw,
			Err:   errors.New(e.Error),
		})
	}
	for _, e := range in.BatchErrors {
		r.batchErrs = append(r.batchErrs, &BatchCommitError{
			First: e.First,
			Last:  e.Last,
			Rows:  e.Rows,
			Err:   errors.New(e.Error),
		})
	}
	return nil
}

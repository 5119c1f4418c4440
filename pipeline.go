package csvpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Stage identifies where in the pipeline an error occurred.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageDecode Stage = "decode"
	StageWrite  Stage = "write"
)

// Action tells the pipeline what to do after a non-fatal error.
type Action string

const (
	ActionFail Action = "fail" // Stop the run and return the error
	ActionSkip Action = "skip" // Record the error and continue
)

// State is a pipeline lifecycle state, reported to the Observer at each
// transition.
type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateRunning   State = "running" // decode and write, one streaming pass
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Pipeline wires fetch, decode, and write into a single streaming pass:
// the writer pulls rows from the decoder, which pulls bytes from the fetched
// stream. No stage materializes the whole file.
//
// A Pipeline is configured once and may run many files; each Run gets an
// independent report and shares no mutable state with concurrent runs.
type Pipeline struct {
	fetcher *Fetcher
	decoder *Decoder
	storage Storage

	// Configuration overrides (nil means use a detected interface value or
	// the default)
	batchSize      *int
	reportInterval *int
	batcher        Batcher
	errHandler     ErrorHandler
	observer       Observer

	// Optional capabilities detected from the storage collaborator
	batcherIface        Batcher
	batchSizeIface      BatchSize
	reportIntervalIface ReportInterval
	errHandlerIface     ErrorHandler
	progressIface       ProgressReporter
	opener              Opener
	closer              Closer
	flusher             Flusher
}

// New creates a Pipeline over the three collaborators. Optional capabilities
// implemented by the storage value are auto-detected; With* overrides take
// precedence over detected interfaces, which take precedence over defaults.
func New(fetcher *Fetcher, decoder *Decoder, storage Storage) *Pipeline {
	p := &Pipeline{
		fetcher: fetcher,
		decoder: decoder,
		storage: storage,
	}

	if b, ok := storage.(Batcher); ok {
		p.batcherIface = b
	}
	if s, ok := storage.(BatchSize); ok {
		p.batchSizeIface = s
	}
	if r, ok := storage.(ReportInterval); ok {
		p.reportIntervalIface = r
	}
	if h, ok := storage.(ErrorHandler); ok {
		p.errHandlerIface = h
	}
	if pr, ok := storage.(ProgressReporter); ok {
		p.progressIface = pr
	}
	if o, ok := storage.(Opener); ok {
		p.opener = o
	}
	if c, ok := storage.(Closer); ok {
		p.closer = c
	}
	if f, ok := storage.(Flusher); ok {
		p.flusher = f
	}

	return p
}

// WithBatchSize overrides the number of rows committed per batch.
// Priority: this method > BatchSize interface > DefaultBatchSize.
// Values less than 1 are ignored.
func (p *Pipeline) WithBatchSize(n int) *Pipeline {
	if n >= 1 {
		p.batchSize = &n
	}
	return p
}

// WithBatcher overrides the batching strategy.
// Priority: this method > a Batcher implemented by the storage value >
// SizeBatcher with the resolved batch size.
func (p *Pipeline) WithBatcher(b Batcher) *Pipeline {
	if b != nil {
		p.batcher = b
	}
	return p
}

// WithReportInterval overrides how often progress is reported (in rows
// persisted). Values less than 1 are ignored.
func (p *Pipeline) WithReportInterval(n int) *Pipeline {
	if n >= 1 {
		p.reportInterval = &n
	}
	return p
}

// WithErrorHandler overrides the error escalation hook.
// Priority: this method > an ErrorHandler implemented by the storage value >
// the default record-and-continue policy.
func (p *Pipeline) WithErrorHandler(h ErrorHandler) *Pipeline {
	if h != nil {
		p.errHandler = h
	}
	return p
}

// WithObserver installs a state-transition observer.
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	if o != nil {
		p.observer = o
	}
	return p
}

// Run ingests a single file: fetch the locator, decode the stream, and
// persist typed rows in batches. Credentials pass through to the transport
// unmodified.
//
// Fatal errors (FetchError, SchemaMismatch, an ErrorHandler escalation)
// return a non-nil error alongside a report in StatusFailed. Cancellation
// between batches returns a nil error and a report in StatusIncomplete;
// rows committed before cancellation stay committed. Otherwise the returned
// report is in StatusCompleted, with per-row and per-batch errors recorded
// in it.
func (p *Pipeline) Run(ctx context.Context, locator string, creds Credentials) (*Report, error) {
	report := NewReport()

	p.notify(ctx, StateFetching, report)
	body, err := p.fetcher.Fetch(ctx, locator, creds)
	if err != nil {
		return p.fail(ctx, report, err)
	}
	defer body.Close()

	if p.opener != nil {
		if err := p.opener.Open(ctx); err != nil {
			return p.fail(ctx, report, fmt.Errorf("opening storage: %w", err))
		}
	}
	if p.closer != nil {
		defer p.closer.Close() //nolint:errcheck // best-effort release after the run
	}

	p.notify(ctx, StateRunning, report)

	cancelled, err := p.process(ctx, body, report)
	if err != nil {
		return p.fail(ctx, report, err)
	}

	if cancelled {
		report.setStatus(StatusIncomplete)
		p.notify(ctx, StateCompleted, report)
		return report, nil
	}

	if p.flusher != nil {
		if err := p.flusher.Flush(ctx); err != nil {
			return p.fail(ctx, report, fmt.Errorf("flushing storage: %w", err))
		}
	}

	report.setStatus(StatusCompleted)
	p.notify(ctx, StateCompleted, report)
	return report, nil
}

func (p *Pipeline) fail(ctx context.Context, report *Report, err error) (*Report, error) {
	report.setStatus(StatusFailed)
	p.notify(ctx, StateFailed, report)
	return report, err
}

func (p *Pipeline) notify(ctx context.Context, state State, report *Report) {
	if p.observer != nil {
		p.observer.OnStage(ctx, state, report)
	}
}

// decoded carries one element of the row sequence across the stage channel.
type decoded struct {
	row Row
	err error
}

// process runs decode and write as one streaming pass. The decoder feeds a
// bounded channel sized to one batch; the writer pulls from it, so the
// channel capacity bounds memory and the writer paces the decoder, which
// paces the fetched stream.
func (p *Pipeline) process(ctx context.Context, body io.Reader, report *Report) (bool, error) {
	w := &batchWriter{
		storage:     p.storage,
		batcher:     p.resolveBatcher(),
		batchSize:   p.resolveBatchSize(),
		errHandler:  p.resolveErrorHandler(),
		progress:    p.progressIface,
		reportEvery: int64(p.resolveReportInterval()),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	ch := make(chan decoded, w.batchSize)

	group.Go(func() error {
		defer close(ch)
		for row, err := range p.decoder.Decode(groupCtx, body) {
			select {
			case ch <- decoded{row: row, err: err}:
			case <-groupCtx.Done():
				// The writer aborted or failed; its error wins.
				return nil
			}
		}
		return nil
	})

	var cancelled bool
	group.Go(func() error {
		err := w.run(ctx, chanRows(ch), report)
		if errors.Is(err, errAborted) {
			cancelled = true
		}
		// Returning errAborted cancels groupCtx, releasing the decoder.
		return err
	})

	err := group.Wait()
	if errors.Is(err, errAborted) {
		err = nil
	}
	return cancelled, err
}

// chanRows adapts the stage channel back into the row sequence shape the
// writer consumes.
func chanRows(ch <-chan decoded) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for d := range ch {
			if !yield(d.row, d.err) {
				return
			}
		}
	}
}

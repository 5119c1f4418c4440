package csvpipe

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Storage is the persistence collaborator. Transaction and consistency
// discipline are its own responsibility; the pipeline only guarantees it
// issues batch-sized write calls and assumes nothing about cross-batch
// atomicity.
//
// Optional capabilities are auto-detected from the same value: [Opener],
// [Closer], [Flusher], [Batcher], [BatchSize], [ErrorHandler],
// [ProgressReporter].
type Storage interface {
	// WriteBatch persists one batch of typed rows. From the pipeline's
	// point of view the commit is atomic: either the batch counts as
	// persisted or the whole batch is recorded as a commit failure.
	WriteBatch(ctx context.Context, rows []Row) error
}

// errAborted signals cancellation observed at a batch boundary. It is never
// surfaced to callers; the run is reported as incomplete instead.
var errAborted = errors.New("csvpipe: run cancelled")

// batchWriter consumes a lazy row sequence one element at a time, groups
// typed rows into batches, and commits each batch through the storage
// collaborator. Memory stays bounded by the batch size regardless of total
// row count.
type batchWriter struct {
	storage     Storage
	batcher     Batcher
	batchSize   int
	errHandler  ErrorHandler
	progress    ProgressReporter
	reportEvery int64
}

// run pulls the sequence to exhaustion, then flushes the remaining partial
// batch. Per-row errors and batch commit failures are recorded in the report
// and do not stop processing unless an ErrorHandler escalates them.
func (w *batchWriter) run(ctx context.Context, rows iter.Seq2[Row, error], report *Report) error {
	var pending []Row

	for row, err := range rows {
		if err != nil {
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				// SchemaMismatch or a stream failure: fatal, no flush.
				return err
			}

			report.incRead(1)
			report.incRejected(1)
			report.addRowError(rowErr)

			if w.errHandler != nil && w.errHandler.OnError(ctx, StageDecode, rowErr) == ActionFail {
				return fmt.Errorf("decode: %w", rowErr)
			}
			continue
		}

		report.incRead(1)
		pending = append(pending, row)

		if len(pending) >= w.batchSize {
			if err := w.commitPending(ctx, pending, report); err != nil {
				return err
			}
			pending = nil
		}
	}

	if len(pending) > 0 {
		if err := w.commitPending(ctx, pending, report); err != nil {
			return err
		}
	}

	// The sequence may have ended because cancellation stopped the decoder
	// rather than because the stream was exhausted; a cancelled run is
	// incomplete either way.
	if ctx.Err() != nil {
		return errAborted
	}
	return nil
}

// commitPending runs the pending rows through the batching strategy and
// commits each resulting batch.
func (w *batchWriter) commitPending(ctx context.Context, pending []Row, report *Report) error {
	for _, batch := range w.batcher.Batch(pending) {
		if len(batch) == 0 {
			continue
		}
		if err := w.commit(ctx, batch, report); err != nil {
			return err
		}
	}
	return nil
}

func (w *batchWriter) commit(ctx context.Context, batch []Row, report *Report) error {
	// Cancellation is honored between batches, never mid-batch: once
	// aborted, no further batches are flushed.
	if ctx.Err() != nil {
		return errAborted
	}

	if err := w.storage.WriteBatch(ctx, batch); err != nil {
		commitErr := &BatchCommitError{
			First: batch[0].Index(),
			Last:  batch[len(batch)-1].Index(),
			Rows:  len(batch),
			Err:   err,
		}
		report.incRejected(int64(len(batch)))
		report.addBatchError(commitErr)

		if w.errHandler != nil && w.errHandler.OnError(ctx, StageWrite, commitErr) == ActionFail {
			return fmt.Errorf("write: %w", commitErr)
		}
		return nil
	}

	// The atomic add returns the new total, so the previous value comes for
	// free; progress fires when the persisted count crosses a boundary.
	persisted := report.incPersisted(int64(len(batch)))
	previous := persisted - int64(len(batch))
	if w.progress != nil && w.reportEvery > 0 && persisted/w.reportEvery > previous/w.reportEvery {
		w.progress.OnProgress(ctx, report)
	}
	return nil
}

// WriteRows consumes a row sequence directly, without the fetch and decode
// stages. It is the standalone form of the pipeline's write stage, useful
// when the rows come from somewhere other than a fetched byte stream.
//
// Optional capabilities ([Batcher], [BatchSize], [ErrorHandler],
// [ProgressReporter]) are auto-detected from the storage value. A batchSize
// below 1 falls back to the storage-advertised size, then DefaultBatchSize.
func WriteRows(ctx context.Context, rows iter.Seq2[Row, error], batchSize int, storage Storage) (*Report, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
		if s, ok := storage.(BatchSize); ok {
			batchSize = s.BatchSize()
		}
	}

	w := &batchWriter{
		storage:     storage,
		batcher:     SizeBatcher(batchSize),
		batchSize:   batchSize,
		reportEvery: DefaultReportInterval,
	}
	if b, ok := storage.(Batcher); ok {
		w.batcher = b
	}
	if h, ok := storage.(ErrorHandler); ok {
		w.errHandler = h
	}
	if pr, ok := storage.(ProgressReporter); ok {
		w.progress = pr
		w.reportEvery = int64(pr.ReportInterval())
	}

	report := NewReport()
	err := w.run(ctx, rows, report)
	switch {
	case errors.Is(err, errAborted):
		report.setStatus(StatusIncomplete)
		return report, nil
	case err != nil:
		report.setStatus(StatusFailed)
		return report, err
	}
	report.setStatus(StatusCompleted)
	return report, nil
}

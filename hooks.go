package csvpipe

import "context"

// ErrorHandler customizes how non-fatal errors are escalated. Without one,
// the pipeline records row and batch errors in the report and continues,
// which is the default partial-failure policy.
//
// Implement this interface on the storage collaborator (auto-detected) or
// install one with WithErrorHandler when you want to:
//   - Stop the run on the first bad row (return ActionFail for StageDecode)
//   - Treat a lost batch as fatal (return ActionFail for StageWrite)
//   - Log or count errors out-of-band before they land in the report
//
// Example:
//
//	func (s *store) OnError(ctx context.Context, stage csvpipe.Stage, err error) csvpipe.Action {
//	    if stage == csvpipe.StageWrite {
//	        return csvpipe.ActionFail // do not tolerate lost batches
//	    }
//	    slog.WarnContext(ctx, "skipping row", "error", err)
//	    return csvpipe.ActionSkip
//	}
//
// Errors handled with ActionSkip are still recorded in the report.
type ErrorHandler interface {
	// OnError is called for each non-fatal error. Return ActionSkip to
	// record it and continue, ActionFail to abort the run.
	OnError(ctx context.Context, stage Stage, err error) Action
}

// Observer receives pipeline state transitions. Notifications are pure side
// effects: they cannot influence control flow, and the report passed in is
// live (counters may still advance after the call).
//
// Example:
//
//	func (o *logObserver) OnStage(ctx context.Context, state csvpipe.State, report *csvpipe.Report) {
//	    slog.InfoContext(ctx, "pipeline stage", "state", state, "report", report)
//	}
type Observer interface {
	// OnStage is called once per state transition, in order.
	OnStage(ctx context.Context, state State, report *Report)
}

// ReportInterval controls how often progress is reported, measured in rows
// persisted. Implement it independently of ProgressReporter when the
// interval should come from the storage collaborator rather than the
// pipeline builder.
//
// The value can be overridden at runtime via WithReportInterval, which takes
// precedence. If neither is set, DefaultReportInterval is used.
type ReportInterval interface {
	// ReportInterval returns how often to call OnProgress (in rows persisted).
	ReportInterval() int
}

// ProgressReporter receives periodic progress updates while rows are being
// persisted. OnProgress is called each time the cumulative persisted count
// crosses a ReportInterval boundary.
//
// The report passed to OnProgress is safe to read concurrently. Avoid
// blocking I/O inside OnProgress; it runs on the write path.
type ProgressReporter interface {
	ReportInterval

	// OnProgress is called periodically during the write stage.
	OnProgress(ctx context.Context, report *Report)
}

// Opener is an optional storage capability: when implemented, Open is called
// once after the fetch succeeds and before any batch is written. An error
// from Open fails the run before any row is processed.
type Opener interface {
	Open(ctx context.Context) error
}

// Closer is an optional storage capability: when implemented, Close is
// called exactly once after the run finishes, on every exit path.
type Closer interface {
	Close() error
}

// Flusher is an optional storage capability: when implemented, Flush is
// called after the final batch commits on a completed run, giving buffering
// storage layers a chance to push out anything they held back.
type Flusher interface {
	Flush(ctx context.Context) error
}

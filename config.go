package csvpipe

// Default configuration values.
const (
	// DefaultBatchSize is the number of rows committed per batch when
	// neither the builder nor the storage collaborator sets one.
	DefaultBatchSize = 200
	// DefaultDelimiter is the field delimiter assumed by NewDecoder.
	DefaultDelimiter = ';'
	// DefaultReportInterval is how many persisted rows pass between
	// progress notifications.
	DefaultReportInterval = 10000
)

// BatchSize lets the storage collaborator advertise its preferred batch
// size, for example one derived from a SQL driver's bind-parameter limit.
//
// The value can be overridden at runtime via WithBatchSize, which takes
// precedence. If neither is set, DefaultBatchSize is used.
//
// Example:
//
//	// Stay under PostgreSQL's 65535 bind parameter limit.
//	func (s *store) BatchSize() int { return 65535 / s.schema.Len() }
type BatchSize interface {
	// BatchSize returns the preferred number of rows per batch commit.
	BatchSize() int
}

// resolveBatchSize returns the effective batch size.
// Priority: WithBatchSize > BatchSize interface > DefaultBatchSize.
func (p *Pipeline) resolveBatchSize() int {
	if p.batchSize != nil {
		return *p.batchSize
	}
	if p.batchSizeIface != nil {
		return p.batchSizeIface.BatchSize()
	}
	return DefaultBatchSize
}

// resolveReportInterval returns the effective report interval.
// Priority: WithReportInterval > ReportInterval interface > DefaultReportInterval.
func (p *Pipeline) resolveReportInterval() int {
	if p.reportInterval != nil {
		return *p.reportInterval
	}
	if p.reportIntervalIface != nil {
		return p.reportIntervalIface.ReportInterval()
	}
	return DefaultReportInterval
}

// resolveErrorHandler returns the effective error escalation hook, or nil
// for the default record-and-continue policy.
// Priority: WithErrorHandler > ErrorHandler interface.
func (p *Pipeline) resolveErrorHandler() ErrorHandler {
	if p.errHandler != nil {
		return p.errHandler
	}
	return p.errHandlerIface
}

// resolveBatcher returns the effective batching strategy.
// Uses the strategy from WithBatcher, then one implemented by the storage
// collaborator, then SizeBatcher with the resolved batch size.
func (p *Pipeline) resolveBatcher() Batcher {
	if p.batcher != nil {
		return p.batcher
	}
	if p.batcherIface != nil {
		return p.batcherIface
	}
	return SizeBatcher(p.resolveBatchSize())
}

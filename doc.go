// Package csvpipe provides a streaming CSV ingestion pipeline: fetch a
// delimited file over an abstract transport, decompress it transparently,
// decode typed rows against a declared schema, and persist them in bounded
// batches through an abstract storage collaborator.
//
// # Quick Start
//
// Declare a schema, wire the three collaborators, and run:
//
//	schema, err := csvpipe.NewSchema(
//	    csvpipe.Field{Name: "id", Type: csvpipe.TypeInt},
//	    csvpipe.Field{Name: "name", Type: csvpipe.TypeString},
//	    csvpipe.Field{Name: "price", Type: csvpipe.TypeDecimal},
//	    csvpipe.Field{Name: "expiration_date", Type: csvpipe.TypeDate, Layout: "2006-01-02"},
//	)
//	if err != nil {
//	    return err
//	}
//
//	fetcher := csvpipe.NewFetcher(csvpipe.NewHTTPTransport(30 * time.Second)).
//	    WithBaseURL("https://files.example.com")
//	decoder := csvpipe.NewDecoder(schema)
//
//	report, err := csvpipe.New(fetcher, decoder, store).
//	    WithBatchSize(500).
//	    Run(ctx, "products.csv.gz", csvpipe.Credentials{Username: u, Password: p})
//
// # Partial-Failure Tolerance
//
// A run only fails outright on a fetch error, a header that does not match
// the schema, or an explicit escalation from an ErrorHandler. Everything
// else is recorded and skipped: a row that fails type coercion becomes a
// RowError in the report, a batch the storage rejects becomes a
// BatchCommitError, and ingestion continues with the next row or batch. The
// final report always satisfies Persisted() + Rejected() == Read().
//
// # Streaming and Backpressure
//
// The three stages form a pull chain: the writer paces the decoder through a
// channel bounded to one batch, and the decoder pulls bytes from the fetched
// stream on demand. Memory use is bounded by the batch size regardless of
// file size. Cancelling the run's context stops the pipeline at the next
// batch boundary; committed batches stay committed and the report comes back
// marked incomplete.
//
// # Storage Capabilities
//
// The storage collaborator needs only WriteBatch. Optional interfaces are
// auto-detected from the same value: Opener and Closer bracket the run,
// Flusher runs after the final batch, BatchSize and Batcher customize
// batching, ErrorHandler escalates non-fatal errors, and ProgressReporter
// receives periodic updates. Runtime overrides on the pipeline builder take
// precedence over detected interfaces, which take precedence over defaults.
package csvpipe

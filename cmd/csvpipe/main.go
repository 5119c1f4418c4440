// Command csvpipe ingests one remote delimited file into a relational table.
//
// The schema is declared in a YAML file as an ordered list of fields:
//
//	- name: id
//	  type: int
//	- name: name
//	  type: string
//	- name: price
//	  type: decimal
//	- name: expiration_date
//	  type: date
//	  layout: "2006-01-02"
//
// Exit status is 0 only when the run completed and no batch was lost.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/ingestkit/csvpipe"
	"github.com/ingestkit/csvpipe/sqlstore"
)

type options struct {
	baseURL    string
	schemaPath string
	delimiter  string
	batchSize  int
	driver     string
	dsn        string
	table      string
	username   string
	password   string
	timeout    time.Duration
	noHeader   bool
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csvpipe",
		Short:         "Stream remote delimited files into a relational table",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newIngestCmd())
	return root
}

func newIngestCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Fetch, decode, and persist one named file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "base URL prefixed to relative file locators")
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "schema.yaml", "path to the YAML schema declaration")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", ";", "field delimiter")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", csvpipe.DefaultBatchSize, "rows per storage commit")
	cmd.Flags().StringVar(&opts.driver, "driver", "postgres", "database/sql driver name")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "database connection string")
	cmd.Flags().StringVar(&opts.table, "table", "", "destination table (required)")
	cmd.Flags().StringVar(&opts.username, "username", os.Getenv("CSVPIPE_USERNAME"), "transport username (defaults to $CSVPIPE_USERNAME)")
	cmd.Flags().StringVar(&opts.password, "password", os.Getenv("CSVPIPE_PASSWORD"), "transport password (defaults to $CSVPIPE_PASSWORD)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "fetch timeout")
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "map columns positionally instead of by header row")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}

func runIngest(ctx context.Context, locator string, opts *options) error {
	logger := newLogger(opts.verbose)

	schema, err := loadSchema(opts.schemaPath)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	delim := []rune(opts.delimiter)
	if len(delim) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", opts.delimiter)
	}

	db, err := sql.Open(opts.driver, opts.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store := sqlstore.New(db, opts.table, schema)
	if opts.driver == "postgres" {
		store = store.WithPlaceholder(sqlstore.Dollar)
	}

	fetcher := csvpipe.NewFetcher(csvpipe.NewHTTPTransport(opts.timeout)).
		WithBaseURL(opts.baseURL)
	decoder := csvpipe.NewDecoder(schema).
		WithDelimiter(delim[0]).
		WithHeader(!opts.noHeader)

	// Stop at the next batch boundary on Ctrl+C or SIGTERM; committed
	// batches stay committed and the report comes back incomplete.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ingesting", "file", locator, "table", opts.table, "batch_size", opts.batchSize)

	report, err := csvpipe.New(fetcher, decoder, store).
		WithBatchSize(opts.batchSize).
		WithObserver(&logObserver{logger: logger}).
		Run(ctx, locator, csvpipe.Credentials{Username: opts.username, Password: opts.password})

	printReport(report)

	if err != nil {
		return err
	}
	if report.Status() != csvpipe.StatusCompleted || report.Fatal() {
		return fmt.Errorf("ingestion did not complete cleanly: status %s, %d batch errors",
			report.Status(), len(report.BatchErrors()))
	}

	logger.Info("done", "report", report)
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// fieldSpec is one entry of the YAML schema file.
type fieldSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Layout   string `yaml:"layout"`
}

func loadSchema(path string) (*csvpipe.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var specs []fieldSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	fields := make([]csvpipe.Field, len(specs))
	for i, spec := range specs {
		fields[i] = csvpipe.Field{
			Name:     spec.Name,
			Type:     csvpipe.FieldType(spec.Type),
			Nullable: spec.Nullable,
			Layout:   spec.Layout,
		}
	}
	return csvpipe.NewSchema(fields...)
}

func printReport(report *csvpipe.Report) {
	if report == nil {
		return
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}

// logObserver logs pipeline state transitions.
type logObserver struct {
	logger *slog.Logger
}

func (o *logObserver) OnStage(ctx context.Context, state csvpipe.State, report *csvpipe.Report) {
	o.logger.InfoContext(ctx, "pipeline state", "state", state, "report", report)
}

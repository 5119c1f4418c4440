package csvpipe_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ingestkit/csvpipe"
)

func TestReport_FreshReport(t *testing.T) {
	report := csvpipe.NewReport()
	require.NotEmpty(t, report.ID())
	require.Equal(t, csvpipe.StatusRunning, report.Status())
	require.Zero(t, report.Read())
	require.Zero(t, report.Persisted())
	require.Zero(t, report.Rejected())
	require.False(t, report.Fatal())
}

func TestReport_UniqueIDs(t *testing.T) {
	require.NotEqual(t, csvpipe.NewReport().ID(), csvpipe.NewReport().ID())
}

func TestReport_MarshalJSON(t *testing.T) {
	transport := &memTransport{body: []byte(productsCSV)}
	report, err := newPipeline(transport, productSchema(t), &memStorage{}).
		Run(context.Background(), "products.csv", csvpipe.Credentials{})
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Read      int64  `json:"read"`
		Persisted int64  `json:"persisted"`
		Rejected  int64  `json:"rejected"`
		RowErrors []struct {
			Index int64    `json:"index"`
			Field string   `json:"field"`
			Raw   []string `json:"raw"`
			Error string   `json:"error"`
		} `json:"row_errors"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, report.ID(), decoded.ID)
	require.Equal(t, "completed", decoded.Status)
	require.Equal(t, int64(3), decoded.Read)
	require.Equal(t, int64(2), decoded.Persisted)
	require.Equal(t, int64(1), decoded.Rejected)
	require.Len(t, decoded.RowErrors, 1)
	require.Equal(t, int64(2), decoded.RowErrors[0].Index)
	require.Equal(t, "price", decoded.RowErrors[0].Field)
	require.NotEmpty(t, decoded.RowErrors[0].Error)
	require.Equal(t, []string{"2", "Gadget", "BAD", "2025-01-01"}, decoded.RowErrors[0].Raw)
}

func TestReport_JSONRoundTrip(t *testing.T) {
	transport := &memTransport{body: []byte(productsCSV)}
	report, err := newPipeline(transport, productSchema(t), &memStorage{}).
		Run(context.Background(), "products.csv", csvpipe.Credentials{})
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	restored := &csvpipe.Report{}
	require.NoError(t, json.Unmarshal(data, restored))

	require.Equal(t, report.ID(), restored.ID())
	require.Equal(t, report.Status(), restored.Status())
	require.Equal(t, report.Read(), restored.Read())
	require.Equal(t, report.Persisted(), restored.Persisted())
	require.Equal(t, report.Rejected(), restored.Rejected())

	origErrs, restoredErrs := report.RowErrors(), restored.RowErrors()
	require.Equal(t, len(origErrs), len(restoredErrs))
	for i := range origErrs {
		require.Equal(t, origErrs[i].Error(), restoredErrs[i].Error())
	}
}

func TestReport_FatalOnBatchError(t *testing.T) {
	commitErr := errors.New("disk full")
	storage := &memStorage{
		failOn: func([]csvpipe.Row) error { return commitErr },
	}

	transport := &memTransport{body: []byte(productsCSV)}
	report, err := newPipeline(transport, productSchema(t), storage).
		Run(context.Background(), "products.csv", csvpipe.Credentials{})
	require.NoError(t, err)
	require.Equal(t, csvpipe.StatusCompleted, report.Status())
	require.True(t, report.Fatal())
}

func TestErrorMessages(t *testing.T) {
	fetchErr := &csvpipe.FetchError{
		Kind:    csvpipe.FetchNotFound,
		Locator: "daily.csv",
		Status:  404,
	}
	require.Equal(t, "fetch daily.csv: not_found (status 404)", fetchErr.Error())

	rowErr := &csvpipe.RowError{Index: 7, Field: "price", Err: errors.New("bad decimal")}
	require.Equal(t, `row 7: field "price": bad decimal`, rowErr.Error())

	mismatch := &csvpipe.SchemaMismatchError{Missing: []string{"price"}, Extra: []string{"cost"}}
	require.Equal(t, "schema mismatch: missing fields price; unexpected fields cost", mismatch.Error())

	batchErr := &csvpipe.BatchCommitError{First: 10, Last: 12, Rows: 3, Err: errors.New("timeout")}
	require.Equal(t, "batch commit rows 10-12 (3 rows): timeout", batchErr.Error())
}

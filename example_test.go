package csvpipe_test

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ingestkit/csvpipe"
)

// cannedTransport serves a fixed payload for any locator.
type cannedTransport struct {
	payload string
}

func (t *cannedTransport) RoundTrip(_ context.Context, _ csvpipe.Request) (*csvpipe.Response, error) {
	return &csvpipe.Response{
		Status: 200,
		Body:   io.NopCloser(bytes.NewReader([]byte(t.payload))),
	}, nil
}

// printStorage prints each committed row.
type printStorage struct{}

func (printStorage) WriteBatch(_ context.Context, rows []csvpipe.Row) error {
	for _, r := range rows {
		id, _ := r.Value("id")
		name, _ := r.Value("name")
		price, _ := r.Value("price")
		fmt.Printf("persisted: %s %s %s\n", id, name, price) //nolint:forbidigo // example output for godoc
	}
	return nil
}

func ExampleNew() {
	schema, err := csvpipe.NewSchema(
		csvpipe.Field{Name: "id", Type: csvpipe.TypeInt},
		csvpipe.Field{Name: "name", Type: csvpipe.TypeString},
		csvpipe.Field{Name: "price", Type: csvpipe.TypeDecimal},
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	transport := &cannedTransport{payload: "id;name;price\n1;Widget;9.99\n2;Gadget;14.50\n"}

	report, err := csvpipe.New(
		csvpipe.NewFetcher(transport),
		csvpipe.NewDecoder(schema),
		printStorage{},
	).Run(context.Background(), "products.csv", csvpipe.Credentials{})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("read=%d persisted=%d rejected=%d\n", report.Read(), report.Persisted(), report.Rejected())

	// Output:
	// persisted: 1 Widget 9.99
	// persisted: 2 Gadget 14.5
	// read=2 persisted=2 rejected=0
}

func ExampleWriteRows() {
	rows := func(yield func(csvpipe.Row, error) bool) {
		for i := int64(1); i <= 3; i++ {
			row := csvpipe.NewRow(i, map[string]csvpipe.Value{
				"id":    {Type: csvpipe.TypeInt, Int: i},
				"name":  {Type: csvpipe.TypeString, Str: fmt.Sprintf("item-%d", i)},
				"price": {Type: csvpipe.TypeDecimal},
			})
			if !yield(row, nil) {
				return
			}
		}
	}

	report, err := csvpipe.WriteRows(context.Background(), rows, 2, printStorage{})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("persisted=%d in status %s\n", report.Persisted(), report.Status())

	// Output:
	// persisted: 1 item-1 0
	// persisted: 2 item-2 0
	// persisted: 3 item-3 0
	// persisted=3 in status completed
}

package csvpipe_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ingestkit/csvpipe"
)

func TestFetcher_PassThrough(t *testing.T) {
	transport := &memTransport{body: []byte("plain bytes")}
	fetcher := csvpipe.NewFetcher(transport)

	stream, err := fetcher.Fetch(context.Background(), "file.csv", csvpipe.Credentials{})
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "plain bytes", string(data))
}

func TestFetcher_GzipByHeader(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("compressed payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	transport := &memTransport{
		body:   buf.Bytes(),
		header: map[string]string{"Content-Encoding": "gzip"},
	}

	stream, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "file.csv.gz", csvpipe.Credentials{})
	require.NoError(t, err)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "compressed payload", string(data))

	require.NoError(t, stream.Close())
	require.True(t, transport.sent.closed, "closing the stream must close the body")
}

func TestFetcher_GzipByContentType(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("typed payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	transport := &memTransport{
		body:   buf.Bytes(),
		header: map[string]string{"Content-Type": "application/gzip"},
	}

	stream, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "file.csv.gz", csvpipe.Credentials{})
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "typed payload", string(data))
}

func TestFetcher_GzipBySniffing(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("sniffed payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	// No Content-Encoding header at all.
	transport := &memTransport{body: buf.Bytes()}

	stream, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "file.csv.gz", csvpipe.Credentials{})
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "sniffed payload", string(data))
}

func TestFetcher_MalformedGzip(t *testing.T) {
	// Gzip magic bytes followed by garbage.
	transport := &memTransport{body: []byte{0x1f, 0x8b, 0xde, 0xad, 0xbe, 0xef}}

	_, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "file.csv.gz", csvpipe.Credentials{})
	require.Error(t, err)

	var fetchErr *csvpipe.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, csvpipe.FetchDecodeFailure, fetchErr.Kind)
	require.True(t, transport.sent.closed, "body must be closed on decode failure")
}

func TestFetcher_NotFound(t *testing.T) {
	transport := &memTransport{status: 404}

	_, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "missing.csv", csvpipe.Credentials{})
	require.Error(t, err)

	var fetchErr *csvpipe.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, csvpipe.FetchNotFound, fetchErr.Kind)
	require.Equal(t, 404, fetchErr.Status)
	require.True(t, transport.sent.closed)
}

func TestFetcher_TransportStatusFailure(t *testing.T) {
	transport := &memTransport{status: 503}

	_, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "file.csv", csvpipe.Credentials{})
	require.Error(t, err)

	var fetchErr *csvpipe.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, csvpipe.FetchTransportFailure, fetchErr.Kind)
	require.Equal(t, 503, fetchErr.Status)
}

func TestFetcher_TransportError(t *testing.T) {
	cause := errors.New("connection reset")
	transport := &memTransport{err: cause}

	_, err := csvpipe.NewFetcher(transport).Fetch(context.Background(), "file.csv", csvpipe.Credentials{})
	require.Error(t, err)

	var fetchErr *csvpipe.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, csvpipe.FetchTransportFailure, fetchErr.Kind)
	require.ErrorIs(t, err, cause)
}

func TestFetcher_BaseURL(t *testing.T) {
	transport := &memTransport{body: []byte("x")}
	fetcher := csvpipe.NewFetcher(transport).WithBaseURL("https://files.example.com/")

	stream, err := fetcher.Fetch(context.Background(), "/daily/products.csv", csvpipe.Credentials{})
	require.NoError(t, err)
	stream.Close()
	require.Equal(t, "https://files.example.com/daily/products.csv", transport.last.URL)

	// Absolute locators bypass the base URL.
	stream, err = fetcher.Fetch(context.Background(), "https://other.example.com/f.csv", csvpipe.Credentials{})
	require.NoError(t, err)
	stream.Close()
	require.Equal(t, "https://other.example.com/f.csv", transport.last.URL)
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	transport := csvpipe.NewHTTPTransport(5 * time.Second)
	resp, err := transport.RoundTrip(context.Background(), csvpipe.Request{
		Method:      http.MethodGet,
		URL:         srv.URL,
		Credentials: csvpipe.Credentials{Username: "svc", Password: "secret"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.Status)
	require.True(t, gotOK)
	require.Equal(t, "svc", gotUser)
	require.Equal(t, "secret", gotPass)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

func TestHTTPTransport_NoCredentialsNoAuthHeader(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, sawAuth = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := csvpipe.NewHTTPTransport(5 * time.Second)
	resp, err := transport.RoundTrip(context.Background(), csvpipe.Request{
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.False(t, sawAuth)
}

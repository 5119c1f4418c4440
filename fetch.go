package csvpipe

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Credentials are passed through to the transport collaborator unmodified.
// The pipeline itself never inspects them.
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether no credentials were supplied.
func (c Credentials) IsZero() bool { return c == Credentials{} }

// Request is the transport-neutral request shape handed to the Transport
// collaborator.
type Request struct {
	Method      string
	URL         string
	Credentials Credentials
	Header      map[string]string
}

// Response is what a Transport returns. Body must be closed by the caller.
type Response struct {
	Status int
	Header map[string]string
	Body   io.ReadCloser
}

// Transport is the collaborator that performs the actual network call.
// Timeouts and retries are its responsibility; failures surface through the
// fetcher as FetchTransportFailure.
type Transport interface {
	RoundTrip(ctx context.Context, req Request) (*Response, error)
}

// Fetcher retrieves raw bytes for a locator and transparently decompresses
// gzip payloads. The returned stream is lazy and single-pass; the whole file
// is never buffered in memory.
type Fetcher struct {
	transport Transport
	baseURL   string
}

// NewFetcher creates a Fetcher over the given transport.
func NewFetcher(transport Transport) *Fetcher {
	return &Fetcher{transport: transport}
}

// WithBaseURL prefixes relative locators with base. Absolute locators are
// passed through unchanged.
func (f *Fetcher) WithBaseURL(base string) *Fetcher {
	f.baseURL = strings.TrimRight(base, "/")
	return f
}

// Fetch retrieves the resource identified by locator. Credentials are
// forwarded to the transport unmodified.
//
// Gzip payloads are detected by the Content-Encoding header or by the gzip
// magic bytes and decompressed transparently. Closing the returned stream
// releases the decompressor and the underlying body on all paths.
func (f *Fetcher) Fetch(ctx context.Context, locator string, creds Credentials) (io.ReadCloser, error) {
	url := locator
	if f.baseURL != "" && !strings.Contains(locator, "://") {
		url = f.baseURL + "/" + strings.TrimLeft(locator, "/")
	}

	resp, err := f.transport.RoundTrip(ctx, Request{
		Method:      http.MethodGet,
		URL:         url,
		Credentials: creds,
	})
	if err != nil {
		return nil, &FetchError{Kind: FetchTransportFailure, Locator: locator, Err: err}
	}

	switch {
	case resp.Status == http.StatusNotFound:
		resp.Body.Close()
		return nil, &FetchError{Kind: FetchNotFound, Locator: locator, Status: resp.Status}
	case resp.Status < 200 || resp.Status > 299:
		resp.Body.Close()
		return nil, &FetchError{Kind: FetchTransportFailure, Locator: locator, Status: resp.Status}
	}

	stream, err := decompress(resp)
	if err != nil {
		resp.Body.Close()
		return nil, &FetchError{Kind: FetchDecodeFailure, Locator: locator, Status: resp.Status, Err: err}
	}
	return stream, nil
}

// decompress wraps the response body in a gzip reader when the payload is
// compressed, otherwise passes it through unchanged.
func decompress(resp *Response) (io.ReadCloser, error) {
	br := bufio.NewReader(resp.Body)

	compressed := strings.EqualFold(resp.Header["Content-Encoding"], "gzip") ||
		strings.Contains(strings.ToLower(resp.Header["Content-Type"]), "gzip")
	if !compressed {
		// Sniff the gzip magic bytes; servers routinely serve .gz files
		// without a Content-Encoding header.
		magic, err := br.Peek(2)
		compressed = err == nil && magic[0] == 0x1f && magic[1] == 0x8b
	}

	if !compressed {
		return &stream{r: br, body: resp.Body}, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, err
	}
	return &stream{r: zr, closer: zr, body: resp.Body}, nil
}

// stream couples a decoded reader with the underlying body so one Close
// releases both.
type stream struct {
	r      io.Reader
	closer io.Closer // optional decompressor layer
	body   io.Closer
}

func (s *stream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *stream) Close() error {
	var first error
	if s.closer != nil {
		first = s.closer.Close()
	}
	if err := s.body.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// HTTPTransport is the default Transport over net/http. Credentials are sent
// as HTTP basic auth when present.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTPTransport with the given request timeout.
// A zero timeout means no timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req Request) (*Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	if !req.Credentials.IsZero() {
		hreq.SetBasicAuth(req.Credentials.Username, req.Credentials.Password)
	}
	for k, v := range req.Header {
		hreq.Header.Set(k, v)
	}

	hresp, err := t.client.Do(hreq)
	if err != nil {
		return nil, err
	}

	header := make(map[string]string, len(hresp.Header))
	for k := range hresp.Header {
		header[k] = hresp.Header.Get(k)
	}

	return &Response{Status: hresp.StatusCode, Header: header, Body: hresp.Body}, nil
}

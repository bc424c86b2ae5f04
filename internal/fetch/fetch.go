// Package fetch holds the buffered request/response pair that flows through the edge,
// and the outbound HTTP client used to reach the network.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SourceHeader reports where a response came from: network, cache, local or synthesized.
const SourceHeader = "X-Storysync-Source"

const (
	SourceNetwork     = "network"
	SourceCache       = "cache"
	SourceLocal       = "local"
	SourceSynthesized = "synthesized"
)

// MaxBodyBytes caps how much of an upstream body is buffered.
const MaxBodyBytes = 32 << 20

// Request is an intercepted request with its body fully read.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Navigate marks top-level document loads.
	Navigate bool
}

// Key is the cache identity of the request: method plus full URL, query included.
func (r *Request) Key() string {
	return r.Method + " " + r.URL
}

// HTTPRequest builds an outbound *http.Request bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Response is a fully buffered response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source string

	// Truncated is set when the upstream body exceeded the buffer cap. Only the first
	// MaxBodyBytes are kept and the response must not be cached.
	Truncated bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy so a stored copy never aliases the returned one.
func (r *Response) Clone() *Response {
	return &Response{
		Status:    r.Status,
		Header:    r.Header.Clone(),
		Body:      bytes.Clone(r.Body),
		Source:    r.Source,
		Truncated: r.Truncated,
	}
}

// Write sends the response to w.
func (r *Response) Write(w http.ResponseWriter) {
	h := w.Header()
	for k, vs := range r.Header {
		if hopByHop[http.CanonicalHeaderKey(k)] {
			continue
		}
		h[k] = append([]string(nil), vs...)
	}
	if r.Source != "" {
		h.Set(SourceHeader, r.Source)
	}
	h.Del("Content-Length")
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Fetcher performs a network round-trip.
// A returned error means no HTTP response was obtained; any status is a response.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Client is the network Fetcher.
type Client struct {
	http    *http.Client
	maxBody int
}

// NewClient returns a Client whose requests time out after timeout (0 means none).
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, maxBody: MaxBodyBytes}
}

// NewClientWith wraps an existing *http.Client.
func NewClientWith(c *http.Client) *Client {
	return &Client{http: c, maxBody: MaxBodyBytes}
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBody)+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	truncated := len(body) > c.maxBody
	if truncated {
		body = body[:c.maxBody]
	}
	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		Source:    SourceNetwork,
		Truncated: truncated,
	}, nil
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Package proxy is the interception surface: it turns inbound HTTP requests into fetch
// events and writes back whatever the edge decides.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hpungsan/storysync/internal/dispatch"
	"github.com/hpungsan/storysync/internal/envelope"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/logging"
)

const (
	// APIPrefix routes to the story API base.
	APIPrefix = "/api"
	// TilePrefix routes to the tile base.
	TilePrefix = "/tiles"
)

// Dispatcher handles fetch events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event) dispatch.Action
}

// Upstreams are the bases inbound paths are mapped onto.
type Upstreams struct {
	APIBaseURL  string
	TileBaseURL string
	AppOrigin   string
}

// Proxy is an http.Handler for everything not served by the edge itself.
type Proxy struct {
	api, tiles, app *url.URL
	dispatcher      Dispatcher
	log             logging.Logger
}

// New validates the upstream bases and returns a Proxy.
func New(up Upstreams, d Dispatcher, log logging.Logger) (*Proxy, error) {
	p := &Proxy{dispatcher: d, log: log}
	if p.log == nil {
		p.log = logging.Nop()
	}
	var err error
	if p.api, err = parseBase("api base", up.APIBaseURL); err != nil {
		return nil, err
	}
	if p.tiles, err = parseBase("tile base", up.TileBaseURL); err != nil {
		return nil, err
	}
	if p.app, err = parseBase("app origin", up.AppOrigin); err != nil {
		return nil, err
	}
	return p, nil
}

func parseBase(name, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s %q must be absolute", name, raw)
	}
	return u, nil
}

// Upstream maps an inbound path and query onto its upstream URL.
func (p *Proxy) Upstream(path, rawQuery string) string {
	base := p.app
	switch {
	case hasPrefix(path, APIPrefix):
		base, path = p.api, strings.TrimPrefix(path, APIPrefix)
	case hasPrefix(path, TilePrefix):
		base, path = p.tiles, strings.TrimPrefix(path, TilePrefix)
	}
	if path == "" {
		path = "/"
	}
	u := *base
	u.Path = base.Path + path
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u.String()
}

// hasPrefix matches prefix as a whole path segment.
func hasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// IsNavigation reports a top-level document load.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// Request converts an inbound request into a fetch request.
func (p *Proxy) Request(r *http.Request) (*fetch.Request, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, fetch.MaxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(body) > fetch.MaxBodyBytes {
			return nil, fmt.Errorf("body exceeds %d bytes", fetch.MaxBodyBytes)
		}
	}
	return &fetch.Request{
		Method:   r.Method,
		URL:      p.Upstream(r.URL.Path, r.URL.RawQuery),
		Header:   outboundHeader(r.Header),
		Body:     body,
		Navigate: IsNavigation(r),
	}, nil
}

// outboundHeader drops headers that describe the inbound hop.
func outboundHeader(in http.Header) http.Header {
	h := in.Clone()
	for _, k := range []string{
		"Connection", "Keep-Alive", "Proxy-Authorization", "Te", "Trailer",
		"Transfer-Encoding", "Upgrade", "Accept-Encoding", "Host",
	} {
		h.Del(k)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := p.Request(r)
	if err != nil {
		p.log.Warn(ctx, "rejecting request", "path", r.URL.Path, "error", err)
		envelope.Error(err.Error(), http.StatusRequestEntityTooLarge).Response().Write(w)
		return
	}

	act := p.dispatcher.Dispatch(ctx, dispatch.Event{Kind: dispatch.KindFetch, Request: req})
	if act.Kind != dispatch.Respond || act.Response == nil {
		p.log.Error(ctx, "fetch event produced no response", "url", req.URL)
		envelope.Empty(http.StatusBadGateway, "Bad Gateway").Write(w)
		return
	}
	p.log.Debug(ctx, "served", "method", req.Method, "url", req.URL, "status", act.Response.Status, "source", act.Response.Source)
	act.Response.Write(w)
}

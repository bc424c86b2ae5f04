// Package cache executes the per-class caching strategies against SQLite-backed partitions.
package cache

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/storysync/internal/classify"
	"github.com/hpungsan/storysync/internal/clock"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/envelope"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/logging"
	"github.com/hpungsan/storysync/internal/story"
)

// writeTimeout bounds a single background partition write.
const writeTimeout = 10 * time.Second

// Partitions names the partitions the engine reads and writes.
type Partitions struct {
	Static  string
	Dynamic string
	API     string
	Tiles   string
}

// Names returns the recognized partition set.
func (p Partitions) Names() []string {
	return []string{p.Static, p.Dynamic, p.API, p.Tiles}
}

// TileBound limits the map-tile partition. Zero fields disable that bound.
type TileBound struct {
	MaxEntries int
	TTL        time.Duration
}

// Options configures an Engine.
type Options struct {
	DB         *sql.DB
	Network    fetch.Fetcher
	Classifier *classify.Classifier
	Partitions Partitions
	TileBound  TileBound

	// AppOrigin locates the root document used as the navigation fallback.
	AppOrigin string

	Clock  clock.Clock
	Logger logging.Logger
}

// Engine serves read requests by resource class.
type Engine struct {
	db      *sql.DB
	net     fetch.Fetcher
	cls     *classify.Classifier
	parts   Partitions
	bound   TileBound
	rootKey []string
	clock   clock.Clock
	log     logging.Logger

	wg sync.WaitGroup
}

// NewEngine returns an Engine.
func NewEngine(opts Options) *Engine {
	origin := strings.TrimSuffix(opts.AppOrigin, "/")
	e := &Engine{
		db:    opts.DB,
		net:   opts.Network,
		cls:   opts.Classifier,
		parts: opts.Partitions,
		bound: opts.TileBound,
		rootKey: []string{
			http.MethodGet + " " + origin + "/index.html",
			http.MethodGet + " " + origin + "/",
		},
		clock: opts.Clock,
		log:   opts.Logger,
	}
	if e.clock == nil {
		e.clock = clock.SystemClock{}
	}
	if e.log == nil {
		e.log = logging.Nop()
	}
	return e
}

// Partitions returns the configured partition names.
func (e *Engine) Partitions() Partitions {
	return e.parts
}

// Resolve classifies req and serves it.
func (e *Engine) Resolve(ctx context.Context, req *fetch.Request) *fetch.Response {
	return e.Serve(ctx, e.cls.Classify(req.Method, req.URL), req)
}

// Serve runs the strategy for class. It always returns a response.
func (e *Engine) Serve(ctx context.Context, class classify.Class, req *fetch.Request) *fetch.Response {
	switch class {
	case classify.Static:
		return e.static(ctx, req)
	case classify.APIData:
		return e.apiData(ctx, req)
	case classify.MapTile:
		return e.mapTile(ctx, req)
	default:
		return e.passthrough(ctx, req)
	}
}

// Wait blocks until every background partition write has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// static is cache-first from the static partition. Misses are fetched but never written
// back: the static partition is populated only at install.
func (e *Engine) static(ctx context.Context, req *fetch.Request) *fetch.Response {
	if resp := e.lookup(ctx, e.parts.Static, req.Key()); resp != nil {
		return resp
	}
	resp, err := e.net.Fetch(ctx, req)
	if err == nil {
		return resp
	}
	e.log.Debug(ctx, "static fetch failed", "url", req.URL, "error", err)
	return e.unavailable(ctx, req)
}

// apiData is network-first with fallback to the API partition, then to local stories.
func (e *Engine) apiData(ctx context.Context, req *fetch.Request) *fetch.Response {
	resp, err := e.net.Fetch(ctx, req)
	if err == nil && resp.OK() {
		e.storeAsync(ctx, e.parts.API, req, resp, false)
		return resp
	}
	if err != nil {
		e.log.Debug(ctx, "api fetch failed", "url", req.URL, "error", err)
	}

	if cached := e.lookup(ctx, e.parts.API, req.Key()); cached != nil {
		return cached
	}

	// A 4xx is the server's answer, not an outage.
	if resp != nil && resp.Status < http.StatusInternalServerError {
		return resp
	}

	if classify.IsStoryList(req.URL) {
		if synced := e.syncedStories(ctx); len(synced) > 0 {
			return envelope.OfflineOk(envelope.MsgOfflineData, envelope.KeyListStory, synced).Response()
		}
	}

	if resp != nil {
		return resp
	}
	return envelope.Error(envelope.MsgNoCachedData, http.StatusRequestTimeout).Response()
}

// mapTile is cache-first with refill into the bounded tile partition.
func (e *Engine) mapTile(ctx context.Context, req *fetch.Request) *fetch.Response {
	if resp := e.lookup(ctx, e.parts.Tiles, req.Key()); resp != nil {
		return resp
	}
	resp, err := e.net.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			e.storeAsync(ctx, e.parts.Tiles, req, resp, true)
		}
		return resp
	}

	e.log.Debug(ctx, "tile fetch failed", "url", req.URL, "error", err)
	// A concurrent request may have filled the tile in the meantime.
	if resp := e.lookup(ctx, e.parts.Tiles, req.Key()); resp != nil {
		return resp
	}
	return envelope.Empty(http.StatusNotFound, envelope.MsgTileNotAvailable)
}

// passthrough is cache-first across every partition with refill into the dynamic partition.
// Non-GET requests are forwarded untouched.
func (e *Engine) passthrough(ctx context.Context, req *fetch.Request) *fetch.Response {
	if req.Method != http.MethodGet {
		resp, err := e.net.Fetch(ctx, req)
		if err != nil {
			e.log.Debug(ctx, "passthrough fetch failed", "method", req.Method, "url", req.URL, "error", err)
			return envelope.Error(envelope.MsgNoCache, http.StatusGatewayTimeout).Response()
		}
		return resp
	}

	if resp := e.lookupAny(ctx, req.Key()); resp != nil {
		return resp
	}
	resp, err := e.net.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			e.storeAsync(ctx, e.parts.Dynamic, req, resp, false)
		}
		return resp
	}
	e.log.Debug(ctx, "passthrough fetch failed", "url", req.URL, "error", err)
	return e.unavailable(ctx, req)
}

// unavailable is the last resort: the cached root document for navigations, else a 504 envelope.
func (e *Engine) unavailable(ctx context.Context, req *fetch.Request) *fetch.Response {
	if req.Navigate {
		for _, key := range e.rootKey {
			if resp := e.lookup(ctx, e.parts.Static, key); resp != nil {
				return resp
			}
		}
		for _, key := range e.rootKey {
			if resp := e.lookupAny(ctx, key); resp != nil {
				return resp
			}
		}
	}
	return envelope.Error(envelope.MsgNoCache, http.StatusGatewayTimeout).Response()
}

// syncedStories returns the server-confirmed stories in the local store.
// Store failures are logged and yield nothing.
func (e *Engine) syncedStories(ctx context.Context) []story.Record {
	records, err := db.ListStories(ctx, e.db)
	if err != nil {
		e.log.Warn(ctx, "local store read failed", "error", err)
		return nil
	}
	return story.FilterPending(records, false)
}

func (e *Engine) lookup(ctx context.Context, partition, key string) *fetch.Response {
	entry, ok, err := db.MatchEntry(ctx, e.db, partition, key)
	if err != nil {
		e.log.Warn(ctx, "cache lookup failed", "partition", partition, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return entryResponse(entry)
}

func (e *Engine) lookupAny(ctx context.Context, key string) *fetch.Response {
	entry, ok, err := db.MatchAny(ctx, e.db, key)
	if err != nil {
		e.log.Warn(ctx, "cache lookup failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return entryResponse(entry)
}

// storeAsync writes a clone of resp in the background. The caller's response is
// returned immediately; Wait joins outstanding writes.
func (e *Engine) storeAsync(ctx context.Context, partition string, req *fetch.Request, resp *fetch.Response, trim bool) {
	if resp.Truncated {
		e.log.Warn(ctx, "response too large to cache", "partition", partition, "url", req.URL)
		return
	}
	clone := resp.Clone()
	entry := &db.CacheEntry{
		Partition: partition,
		Key:       req.Key(),
		URL:       req.URL,
		Status:    clone.Status,
		Header:    clone.Header,
		Body:      clone.Body,
		StoredAt:  e.clock.Now(),
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()

		if err := db.PutEntry(wctx, e.db, entry); err != nil {
			e.log.Warn(wctx, "cache write failed", "partition", partition, "url", entry.URL, "error", err)
			return
		}
		if trim {
			e.trimTiles(wctx)
		}
	}()
}

func (e *Engine) trimTiles(ctx context.Context) {
	var olderThan time.Time
	if e.bound.TTL > 0 {
		olderThan = e.clock.Now().Add(-e.bound.TTL)
	}
	removed, err := db.TrimPartition(ctx, e.db, e.parts.Tiles, e.bound.MaxEntries, olderThan)
	if err != nil {
		e.log.Warn(ctx, "tile trim failed", "error", err)
		return
	}
	if removed > 0 {
		e.log.Debug(ctx, "tile partition trimmed", "removed", removed)
	}
}

func entryResponse(entry *db.CacheEntry) *fetch.Response {
	return &fetch.Response{
		Status: entry.Status,
		Header: entry.Header,
		Body:   entry.Body,
		Source: fetch.SourceCache,
	}
}

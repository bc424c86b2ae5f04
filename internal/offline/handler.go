// Package offline handles mutations against the story API when the network is unavailable.
package offline

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"

	"github.com/hpungsan/storysync/internal/classify"
	"github.com/hpungsan/storysync/internal/clock"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/envelope"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/logging"
	"github.com/hpungsan/storysync/internal/story"
)

// SyncTag is the deferred task armed after an offline story is saved.
const SyncTag = "sync-stories"

// Deferrer registers a named task to run once connectivity allows.
type Deferrer interface {
	Defer(tag string) error
}

// Connectivity receives the connectivity state observed by a failed mutation.
type Connectivity interface {
	Set(ctx context.Context, online bool)
}

// Handler is the offline submission handler.
type Handler struct {
	db       *sql.DB
	net      fetch.Fetcher
	deferrer Deferrer
	conn     Connectivity
	clock    clock.Clock
	log      logging.Logger
}

// NewHandler returns a Handler. d may be nil, in which case nothing is armed.
func NewHandler(sqlDB *sql.DB, net fetch.Fetcher, d Deferrer, clk clock.Clock, log logging.Logger) *Handler {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{db: sqlDB, net: net, deferrer: d, clock: clk, log: log}
}

// ReportTo makes transport failures mark c offline before the sync task is armed, so a
// deferrer gated on c keeps the task armed until connectivity is restored.
func (h *Handler) ReportTo(c Connectivity) {
	h.conn = c
}

// HandleMutation forwards req once. Any HTTP answer is returned unmodified; on transport
// failure a story submission is saved as a pending record and everything else gets a
// 408 envelope.
func (h *Handler) HandleMutation(ctx context.Context, req *fetch.Request) *fetch.Response {
	resp, err := h.net.Fetch(ctx, req)
	if err == nil {
		return resp
	}
	h.log.Info(ctx, "mutation failed, handling offline", "method", req.Method, "url", req.URL, "error", err)
	if h.conn != nil && ctx.Err() == nil {
		h.conn.Set(ctx, false)
	}

	if !classify.IsStoryCreate(req.Method, req.URL) {
		return envelope.Error(envelope.MsgMutationOffline, http.StatusRequestTimeout).Response()
	}

	rec, err := h.pendingRecord(req)
	if err != nil {
		h.log.Error(ctx, "saving offline story failed", "error", err)
		return envelope.Error(envelope.MsgSaveFailed, http.StatusInternalServerError).Response()
	}
	// Render before persisting: a saved record must never be reported as a failure.
	resp = envelope.Ok(envelope.MsgSavedOffline, envelope.KeyData, rec).Response()
	if resp.Status != http.StatusOK {
		h.log.Error(ctx, "offline story cannot be rendered", "id", rec.ID)
		return envelope.Error(envelope.MsgSaveFailed, http.StatusInternalServerError).Response()
	}
	if err := db.PutStory(ctx, h.db, rec); err != nil {
		h.log.Error(ctx, "saving offline story failed", "error", err)
		return envelope.Error(envelope.MsgSaveFailed, http.StatusInternalServerError).Response()
	}
	h.log.Info(ctx, "story saved offline", "id", rec.ID)
	h.arm(ctx)

	return resp
}

// Store persists a story handed over by a view context. Records without an id, or with a
// local id, are pending; records carrying a server id are stored as synced copies.
// Arming the sync task for pending records is left to the caller.
func (h *Handler) Store(ctx context.Context, rec *story.Record) (*story.Record, error) {
	if rec.ID == "" {
		id, err := story.NewLocalID(h.clock.Now())
		if err != nil {
			return nil, err
		}
		rec.ID = id
	}
	rec.Pending = story.IsLocalID(rec.ID)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = h.clock.Now()
	}
	if rec.Name == "" {
		rec.Name = "Untitled"
	}

	if err := db.PutStory(ctx, h.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (h *Handler) pendingRecord(req *fetch.Request) (*story.Record, error) {
	httpReq, err := http.NewRequest(req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = http.Header{}
	}
	fields, err := story.ParseForm(httpReq)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	id, err := story.NewLocalID(now)
	if err != nil {
		return nil, err
	}
	return story.NewPending(id, fields, now), nil
}

// arm registers the deferred sync task. Failure is non-fatal: the next connectivity
// restoration still triggers reconciliation.
func (h *Handler) arm(ctx context.Context) {
	if h.deferrer == nil {
		h.log.Warn(ctx, "deferred sync unavailable", "tag", SyncTag)
		return
	}
	if err := h.deferrer.Defer(SyncTag); err != nil {
		h.log.Warn(ctx, "deferred sync registration failed", "tag", SyncTag, "error", err)
	}
}

package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/storysync/internal/clients"
	"github.com/hpungsan/storysync/internal/dispatch"
	"github.com/hpungsan/storysync/internal/edge"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/ops"
)

// Handlers contains HTTP route handlers for the admin pages.
type Handlers struct {
	edge     *edge.Edge
	renderer *Renderer
}

// HandleStories handles GET /_edge/stories: the offline stories page.
func (h *Handlers) HandleStories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ops.ListInput{
		Filter: q.Get("filter"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	result, err := ops.List(r.Context(), h.edge.DB, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	items := make([]StoryView, 0, len(result.Items))
	for _, s := range result.Items {
		items = append(items, StoryView{StorySummary: s, DescriptionHTML: renderMarkdown(s.Description)})
	}

	filter := input.Filter
	if filter == "" {
		filter = ops.FilterAll
	}
	h.renderer.renderPage(w, r, "stories", StoriesPageData{
		PageData:   h.renderer.page("Offline stories", "stories"),
		Items:      items,
		Pagination: result.Pagination,
		Filter:     filter,
		Pending:    result.Pending,
		Online:     h.edge.Monitor.Online(),
		Flash:      q.Get("flash"),
	})
}

// HandleDelete handles POST /_edge/stories/{id}/delete and DELETE /_edge/stories/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("story ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.edge.DB, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.respond(w, r, result, "Story deleted")
}

// HandleSync handles POST /_edge/sync: run a reconciliation pass now.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Sync(r.Context(), h.edge.Reconciler)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, result, fmt.Sprintf("Synced %d of %d stories", result.Synced, result.Total))
}

// HandlePull handles POST /_edge/pull: mirror server stories for offline reading.
func (h *Handlers) HandlePull(w http.ResponseWriter, r *http.Request) {
	input := ops.PullInput{
		Page:     parseIntParam(r, "page", 1),
		Size:     parseIntParam(r, "size", ops.DefaultPullSize),
		Location: parseBoolParam(r, "location"),
	}
	result, err := ops.Pull(r.Context(), h.edge.DB, h.edge.API, h.edge.Credentials, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, result, fmt.Sprintf("Pulled %d stories", result.Stored))
}

// HandleCache handles GET /_edge/cache: the partition listing.
func (h *Handlers) HandleCache(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Partitions(r.Context(), h.edge.DB, h.edge.Lifecycle.Recognized())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "cache", CachePageData{
		PageData:   h.renderer.page("Cache", "cache"),
		State:      string(h.edge.Lifecycle.State()),
		Partitions: result,
	})
}

// HandleStatus handles GET /_edge/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Status(r.Context(), h.edge.DB, ops.StatusInput{
		State:      string(h.edge.Lifecycle.State()),
		Version:    h.edge.Lifecycle.Version(),
		Online:     h.edge.Monitor.Online(),
		Clients:    h.edge.Hub.Count(),
		Armed:      h.edge.Scheduler.Armed(),
		Recognized: h.edge.Lifecycle.Recognized(),
	})
	if err != nil {
		r.Header.Set("Accept", "application/json")
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// pushPayload is the body of POST /_edge/push. Every field is optional.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// HandlePush handles POST /_edge/push: relay a notification to connected view contexts.
func (h *Handlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	var p pushPayload
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("unreadable body"))
		return
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			// Non-JSON payloads become the notification body.
			p = pushPayload{Body: string(data)}
		}
	}

	h.edge.Dispatch(r.Context(), dispatch.Event{
		Kind:    dispatch.KindPush,
		Message: &clients.Message{Title: p.Title, Body: p.Body, URL: p.URL},
	})
	renderJSON(w, http.StatusAccepted, map[string]any{"clients": h.edge.Hub.Count()})
}

// respond answers a mutating admin request by content negotiation.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, result any, flash string) {
	target := AdminPrefix + "/stories?flash=" + url.QueryEscape(flash)

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

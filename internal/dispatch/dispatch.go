// Package dispatch routes edge events through one table: event kind → handler → action.
package dispatch

import (
	"context"
	"net/http"

	"github.com/hpungsan/storysync/internal/classify"
	"github.com/hpungsan/storysync/internal/clients"
	"github.com/hpungsan/storysync/internal/envelope"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/lifecycle"
	"github.com/hpungsan/storysync/internal/logging"
	"github.com/hpungsan/storysync/internal/offline"
	"github.com/hpungsan/storysync/internal/story"
)

// Kind identifies an event.
type Kind string

const (
	KindFetch    Kind = "fetch"
	KindMessage  Kind = "message"
	KindInstall  Kind = "install"
	KindActivate Kind = "activate"
	KindSync     Kind = "sync"
	KindOnline   Kind = "online"
	KindPush     Kind = "push"
)

// Event is one input to the edge. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind

	// Request is set for fetch events.
	Request *fetch.Request

	// ClientID and Message are set for message events. Message also carries the
	// payload of push events.
	ClientID string
	Message  *clients.Message

	// Tag names the deferred task of a sync event.
	Tag string
}

// ActionKind says what the caller should do with a handler's result.
type ActionKind int

const (
	// Ignore means nothing is left to do.
	Ignore ActionKind = iota
	// Respond means Response answers the event.
	Respond
	// Defer means the task named Tag should be armed.
	Defer
)

func (k ActionKind) String() string {
	switch k {
	case Respond:
		return "respond"
	case Defer:
		return "defer"
	default:
		return "ignore"
	}
}

// Action is a handler's result. Err is reported for logging; it never changes Kind.
type Action struct {
	Kind     ActionKind
	Response *fetch.Response
	Tag      string
	Err      error
}

// Cache serves read-path requests.
type Cache interface {
	Serve(ctx context.Context, class classify.Class, req *fetch.Request) *fetch.Response
}

// Offline serves write-path requests and STORE_STORY.
type Offline interface {
	HandleMutation(ctx context.Context, req *fetch.Request) *fetch.Response
	Store(ctx context.Context, rec *story.Record) (*story.Record, error)
}

// Lifecycle drives partition versioning.
type Lifecycle interface {
	Install(ctx context.Context) (*lifecycle.InstallResult, error)
	Activate(ctx context.Context) (*lifecycle.ActivateResult, error)
	SkipWaiting(ctx context.Context) error
}

// Reconciler accepts reconciliation requests.
type Reconciler interface {
	Trigger()
}

// Broadcaster reaches every connected view context.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg clients.Message) int
}

// Deps are the collaborators handlers act on.
type Deps struct {
	Classifier *classify.Classifier
	Cache      Cache
	Offline    Offline
	Lifecycle  Lifecycle
	Reconciler Reconciler
	Clients    Broadcaster
	Logger     logging.Logger
}

// Handler handles one event kind.
type Handler func(ctx context.Context, ev Event, deps *Deps) Action

// table maps every event kind to its handler.
var table = map[Kind]Handler{
	KindFetch:    handleFetch,
	KindMessage:  handleMessage,
	KindInstall:  handleInstall,
	KindActivate: handleActivate,
	KindSync:     handleSync,
	KindOnline:   handleOnline,
	KindPush:     handlePush,
}

// Kinds returns every routed event kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(table))
	for k := range table {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatcher applies the table to events.
type Dispatcher struct {
	deps *Deps
}

// New returns a Dispatcher over deps.
func New(deps *Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	return &Dispatcher{deps: deps}
}

// Dispatch runs the handler for ev.Kind. Unknown kinds are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Action {
	h, ok := table[ev.Kind]
	if !ok {
		d.deps.Logger.Debug(ctx, "no handler for event", "kind", ev.Kind)
		return Action{Kind: Ignore}
	}
	act := h(ctx, ev, d.deps)
	if act.Err != nil {
		d.deps.Logger.Warn(ctx, "event handler failed", "kind", ev.Kind, "error", act.Err)
	}
	return act
}

func handleFetch(ctx context.Context, ev Event, deps *Deps) Action {
	req := ev.Request
	if req == nil {
		return Action{Kind: Respond, Response: envelope.Empty(http.StatusBadRequest, "Bad Request")}
	}
	class := deps.Classifier.Classify(req.Method, req.URL)
	if class == classify.OfflineSubmission {
		return Action{Kind: Respond, Response: deps.Offline.HandleMutation(ctx, req)}
	}
	return Action{Kind: Respond, Response: deps.Cache.Serve(ctx, class, req)}
}

func handleMessage(ctx context.Context, ev Event, deps *Deps) Action {
	if ev.Message == nil {
		return Action{Kind: Ignore}
	}
	switch ev.Message.Type {
	case clients.TypeStoreStory:
		if ev.Message.Story == nil {
			return Action{Kind: Ignore}
		}
		rec, err := deps.Offline.Store(ctx, ev.Message.Story)
		if err != nil {
			return Action{Kind: Ignore, Err: err}
		}
		if rec.Pending {
			return Action{Kind: Defer, Tag: offline.SyncTag}
		}
		return Action{Kind: Ignore}
	case clients.TypeSkipWaiting:
		return Action{Kind: Ignore, Err: deps.Lifecycle.SkipWaiting(ctx)}
	default:
		deps.Logger.Debug(ctx, "message ignored", "type", ev.Message.Type, "client", ev.ClientID)
		return Action{Kind: Ignore}
	}
}

func handleInstall(ctx context.Context, ev Event, deps *Deps) Action {
	_, err := deps.Lifecycle.Install(ctx)
	return Action{Kind: Ignore, Err: err}
}

func handleActivate(ctx context.Context, ev Event, deps *Deps) Action {
	_, err := deps.Lifecycle.Activate(ctx)
	return Action{Kind: Ignore, Err: err}
}

func handleSync(ctx context.Context, ev Event, deps *Deps) Action {
	if ev.Tag != offline.SyncTag {
		deps.Logger.Debug(ctx, "unknown sync tag", "tag", ev.Tag)
		return Action{Kind: Ignore}
	}
	deps.Reconciler.Trigger()
	return Action{Kind: Ignore}
}

func handleOnline(ctx context.Context, ev Event, deps *Deps) Action {
	deps.Reconciler.Trigger()
	return Action{Kind: Ignore}
}

func handlePush(ctx context.Context, ev Event, deps *Deps) Action {
	var title, body, url string
	if ev.Message != nil {
		title, body, url = ev.Message.Title, ev.Message.Body, ev.Message.URL
	}
	deps.Clients.Broadcast(ctx, clients.Notification(title, body, url))
	return Action{Kind: Ignore}
}

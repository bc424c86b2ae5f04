package dispatch

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/storysync/internal/classify"
	"github.com/hpungsan/storysync/internal/clients"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/lifecycle"
	"github.com/hpungsan/storysync/internal/offline"
	"github.com/hpungsan/storysync/internal/story"
)

type fakeCache struct {
	classes []classify.Class
}

func (c *fakeCache) Serve(ctx context.Context, class classify.Class, req *fetch.Request) *fetch.Response {
	c.classes = append(c.classes, class)
	return &fetch.Response{Status: http.StatusOK, Source: fetch.SourceCache}
}

type fakeOffline struct {
	mutations int
	stored    []*story.Record
	storeErr  error
}

func (o *fakeOffline) HandleMutation(ctx context.Context, req *fetch.Request) *fetch.Response {
	o.mutations++
	return &fetch.Response{Status: http.StatusCreated, Source: fetch.SourceNetwork}
}

func (o *fakeOffline) Store(ctx context.Context, rec *story.Record) (*story.Record, error) {
	if o.storeErr != nil {
		return nil, o.storeErr
	}
	if rec.ID == "" {
		id, err := story.NewLocalID(time.Now())
		if err != nil {
			return nil, err
		}
		rec.ID = id
	}
	rec.Pending = story.IsLocalID(rec.ID)
	o.stored = append(o.stored, rec)
	return rec, nil
}

type fakeLifecycle struct {
	installs, activations, skips int
	err                          error
}

func (l *fakeLifecycle) Install(ctx context.Context) (*lifecycle.InstallResult, error) {
	l.installs++
	return &lifecycle.InstallResult{}, l.err
}

func (l *fakeLifecycle) Activate(ctx context.Context) (*lifecycle.ActivateResult, error) {
	l.activations++
	return &lifecycle.ActivateResult{}, l.err
}

func (l *fakeLifecycle) SkipWaiting(ctx context.Context) error {
	l.skips++
	return l.err
}

type fakeReconciler struct{ triggers atomic.Int32 }

func (r *fakeReconciler) Trigger() { r.triggers.Add(1) }

type fakeClients struct{ sent []clients.Message }

func (c *fakeClients) Broadcast(ctx context.Context, msg clients.Message) int {
	c.sent = append(c.sent, msg)
	return 1
}

type fixture struct {
	cache      *fakeCache
	offline    *fakeOffline
	lifecycle  *fakeLifecycle
	reconciler *fakeReconciler
	clients    *fakeClients
	d          *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cls, err := classify.New("https://story-api.dicoding.dev/v1", "tile.openstreetmap.org", "http://localhost:9000", []string{"/", "/index.html"})
	require.NoError(t, err)
	f := &fixture{
		cache:      &fakeCache{},
		offline:    &fakeOffline{},
		lifecycle:  &fakeLifecycle{},
		reconciler: &fakeReconciler{},
		clients:    &fakeClients{},
	}
	f.d = New(&Deps{
		Classifier: cls,
		Cache:      f.cache,
		Offline:    f.offline,
		Lifecycle:  f.lifecycle,
		Reconciler: f.reconciler,
		Clients:    f.clients,
	})
	return f
}

func TestDispatch_TableCoversEveryKind(t *testing.T) {
	assert.ElementsMatch(t,
		[]Kind{KindFetch, KindMessage, KindInstall, KindActivate, KindSync, KindOnline, KindPush},
		Kinds())
}

func TestDispatch_UnknownKindIgnored(t *testing.T) {
	f := newFixture(t)
	act := f.d.Dispatch(context.Background(), Event{Kind: "bogus"})
	assert.Equal(t, Ignore, act.Kind)
}

func TestDispatch_FetchRoutesByClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	act := f.d.Dispatch(ctx, Event{Kind: KindFetch, Request: &fetch.Request{
		Method: http.MethodPost, URL: "https://story-api.dicoding.dev/v1/stories",
	}})
	assert.Equal(t, Respond, act.Kind)
	assert.Equal(t, http.StatusCreated, act.Response.Status)
	assert.Equal(t, 1, f.offline.mutations)

	act = f.d.Dispatch(ctx, Event{Kind: KindFetch, Request: &fetch.Request{
		Method: http.MethodGet, URL: "https://a.tile.openstreetmap.org/1/2/3.png",
	}})
	assert.Equal(t, Respond, act.Kind)
	assert.Equal(t, []classify.Class{classify.MapTile}, f.cache.classes)
}

func TestDispatch_FetchWithoutRequest(t *testing.T) {
	f := newFixture(t)
	act := f.d.Dispatch(context.Background(), Event{Kind: KindFetch})
	require.Equal(t, Respond, act.Kind)
	assert.Equal(t, http.StatusBadRequest, act.Response.Status)
}

func TestDispatch_StoreStory(t *testing.T) {
	localID, err := story.NewLocalID(time.Now())
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
		want ActionKind
	}{
		{"new story is pending", "", Defer},
		{"local id is pending", localID, Defer},
		{"server copy is synced", "story-abc", Ignore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			msg := &clients.Message{Type: clients.TypeStoreStory, Story: &story.Record{ID: tt.id, Name: "x"}}
			act := f.d.Dispatch(context.Background(), Event{Kind: KindMessage, ClientID: "c1", Message: msg})
			assert.Equal(t, tt.want, act.Kind)
			require.Len(t, f.offline.stored, 1)
			if tt.want == Defer {
				assert.Equal(t, offline.SyncTag, act.Tag)
			}
		})
	}
}

func TestDispatch_StoreStoryFailure(t *testing.T) {
	f := newFixture(t)
	f.offline.storeErr = stderrors.New("disk full")
	msg := &clients.Message{Type: clients.TypeStoreStory, Story: &story.Record{Name: "x"}}

	act := f.d.Dispatch(context.Background(), Event{Kind: KindMessage, Message: msg})
	assert.Equal(t, Ignore, act.Kind)
	assert.Error(t, act.Err)
}

func TestDispatch_StoreStoryWithoutPayload(t *testing.T) {
	f := newFixture(t)
	act := f.d.Dispatch(context.Background(), Event{Kind: KindMessage, Message: &clients.Message{Type: clients.TypeStoreStory}})
	assert.Equal(t, Ignore, act.Kind)
	assert.Empty(t, f.offline.stored)
}

func TestDispatch_SkipWaiting(t *testing.T) {
	f := newFixture(t)
	act := f.d.Dispatch(context.Background(), Event{Kind: KindMessage, Message: &clients.Message{Type: clients.TypeSkipWaiting}})
	assert.Equal(t, Ignore, act.Kind)
	assert.Equal(t, 1, f.lifecycle.skips)
}

func TestDispatch_LifecycleEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.d.Dispatch(ctx, Event{Kind: KindInstall})
	f.d.Dispatch(ctx, Event{Kind: KindActivate})
	assert.Equal(t, 1, f.lifecycle.installs)
	assert.Equal(t, 1, f.lifecycle.activations)

	f.lifecycle.err = stderrors.New("boom")
	act := f.d.Dispatch(ctx, Event{Kind: KindInstall})
	assert.Error(t, act.Err)
}

func TestDispatch_SyncAndOnlineTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.d.Dispatch(ctx, Event{Kind: KindSync, Tag: offline.SyncTag})
	f.d.Dispatch(ctx, Event{Kind: KindSync, Tag: "other"})
	f.d.Dispatch(ctx, Event{Kind: KindOnline})
	assert.Equal(t, int32(2), f.reconciler.triggers.Load())
}

func TestDispatch_PushBroadcastsNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.d.Dispatch(ctx, Event{Kind: KindPush})
	f.d.Dispatch(ctx, Event{Kind: KindPush, Message: &clients.Message{Title: "Story baru", URL: "/#/home"}})

	require.Len(t, f.clients.sent, 2)
	assert.Equal(t, clients.Notification("", "", ""), f.clients.sent[0])
	assert.Equal(t, "Story baru", f.clients.sent[1].Title)
	assert.Equal(t, "Anda punya notifikasi baru!", f.clients.sent[1].Body)
	assert.Equal(t, "/#/home", f.clients.sent[1].URL)
}

// Package edge assembles the storysync components and wires their events together.
package edge

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"

	"github.com/hpungsan/storysync/internal/api"
	"github.com/hpungsan/storysync/internal/cache"
	"github.com/hpungsan/storysync/internal/classify"
	"github.com/hpungsan/storysync/internal/clients"
	"github.com/hpungsan/storysync/internal/clock"
	"github.com/hpungsan/storysync/internal/config"
	"github.com/hpungsan/storysync/internal/dispatch"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/lifecycle"
	"github.com/hpungsan/storysync/internal/logging"
	"github.com/hpungsan/storysync/internal/offline"
	"github.com/hpungsan/storysync/internal/proxy"
	"github.com/hpungsan/storysync/internal/reconcile"
)

// Options overrides the collaborators New would otherwise build from the config.
type Options struct {
	Network fetch.Fetcher
	Clock   clock.Clock
	Logger  logging.Logger
}

// Edge holds every component of a running edge.
type Edge struct {
	Config   *config.Config
	Manifest *config.Manifest
	DB       *sql.DB
	Log      logging.Logger

	Network     fetch.Fetcher
	Classifier  *classify.Classifier
	Cache       *cache.Engine
	Offline     *offline.Handler
	Hub         *clients.Hub
	API         *api.Client
	Credentials *reconcile.Credentials
	Reconciler  *reconcile.Engine
	Scheduler   *reconcile.Scheduler
	Monitor     *reconcile.Monitor
	Lifecycle   *lifecycle.Manager
	Dispatcher  *dispatch.Dispatcher
	Proxy       *proxy.Proxy
}

// New builds an Edge over an initialized database.
func New(sqlDB *sql.DB, cfg *config.Config, manifest *config.Manifest, opts Options) (*Edge, error) {
	if manifest == nil {
		manifest = config.DefaultManifest()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	network := opts.Network
	if network == nil {
		network = fetch.NewClient(cfg.FetchTimeout.Std())
	}

	cls, err := classify.New(cfg.APIBaseURL, cfg.TileHost, cfg.AppOrigin, manifest.Assets)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	e := &Edge{
		Config:     cfg,
		Manifest:   manifest,
		DB:         sqlDB,
		Log:        log,
		Network:    network,
		Classifier: cls,
	}

	partitions := cache.Partitions{
		Static:  manifest.StaticPartition(),
		Dynamic: cfg.DynamicPartition,
		API:     cfg.APIPartition,
		Tiles:   cfg.TilePartition,
	}
	e.Cache = cache.NewEngine(cache.Options{
		DB:         sqlDB,
		Network:    network,
		Classifier: cls,
		Partitions: partitions,
		TileBound: cache.TileBound{
			MaxEntries: cfg.TileCacheMaxEntries,
			TTL:        cfg.TileCacheTTL.Std(),
		},
		AppOrigin: cfg.AppOrigin,
		Clock:     clk,
		Logger:    log.With("component", "cache"),
	})

	e.Hub = clients.NewHub(cfg.TokenTimeout.Std(), originPatterns(cfg.AppOrigin), log.With("component", "clients"))
	e.API = api.New(cfg.APIBaseURL, network)
	e.Credentials = reconcile.NewCredentials(e.Hub, cfg.StaticToken, clk, log.With("component", "credentials"))
	e.Reconciler = reconcile.NewEngine(sqlDB, e.API, e.Credentials, e.Hub, cfg.SyncConcurrency, log.With("component", "reconcile"))
	e.Monitor = reconcile.NewMonitor(network, cfg.APIBaseURL, cfg.ProbeInterval.Std(), log.With("component", "monitor"))
	e.Scheduler = reconcile.NewScheduler(e.Monitor.Online)
	e.Offline = offline.NewHandler(sqlDB, network, e.Scheduler, clk, log.With("component", "offline"))
	e.Offline.ReportTo(e.Monitor)

	e.Lifecycle, err = lifecycle.NewManager(lifecycle.Options{
		DB:        sqlDB,
		Network:   network,
		Manifest:  manifest,
		AppOrigin: cfg.AppOrigin,
		Keep:      []string{partitions.Dynamic, partitions.API, partitions.Tiles},
		Notifier:  e.Hub,
		Clock:     clk,
		Logger:    log.With("component", "lifecycle"),
	})
	if err != nil {
		return nil, err
	}

	e.Dispatcher = dispatch.New(&dispatch.Deps{
		Classifier: cls,
		Cache:      e.Cache,
		Offline:    e.Offline,
		Lifecycle:  e.Lifecycle,
		Reconciler: e.Reconciler,
		Clients:    e.Hub,
		Logger:     log.With("component", "dispatch"),
	})

	e.Proxy, err = proxy.New(proxy.Upstreams{
		APIBaseURL:  cfg.APIBaseURL,
		TileBaseURL: cfg.TileBaseURL,
		AppOrigin:   cfg.AppOrigin,
	}, e, log.With("component", "proxy"))
	if err != nil {
		return nil, err
	}

	e.wire()
	return e, nil
}

func (e *Edge) wire() {
	e.Scheduler.Handle(offline.SyncTag, func() {
		e.Dispatch(context.Background(), dispatch.Event{Kind: dispatch.KindSync, Tag: offline.SyncTag})
	})
	e.Monitor.OnOnline(func(ctx context.Context) {
		e.Scheduler.FireArmed()
		e.Dispatch(ctx, dispatch.Event{Kind: dispatch.KindOnline})
	})
	e.Hub.OnMessage(func(ctx context.Context, clientID string, msg clients.Message) {
		e.Dispatch(ctx, dispatch.Event{Kind: dispatch.KindMessage, ClientID: clientID, Message: &msg})
	})
}

// Dispatch routes ev through the dispatch table and carries out Defer actions.
func (e *Edge) Dispatch(ctx context.Context, ev dispatch.Event) dispatch.Action {
	act := e.Dispatcher.Dispatch(ctx, ev)
	if act.Kind == dispatch.Defer {
		if err := e.Scheduler.Defer(act.Tag); err != nil {
			e.Log.Warn(ctx, "arming deferred task failed", "tag", act.Tag, "error", err)
		}
	}
	return act
}

// Start installs and activates the current manifest version.
func (e *Edge) Start(ctx context.Context) error {
	if act := e.Dispatch(ctx, dispatch.Event{Kind: dispatch.KindInstall}); act.Err != nil {
		return fmt.Errorf("install: %w", act.Err)
	}
	if act := e.Dispatch(ctx, dispatch.Event{Kind: dispatch.KindActivate}); act.Err != nil {
		return fmt.Errorf("activate: %w", act.Err)
	}
	return nil
}

// Run starts the background loops and blocks until ctx is cancelled. Outstanding cache
// writes are joined and view contexts disconnected before it returns.
func (e *Edge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.Reconciler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.Monitor.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	e.Cache.Wait()
	e.Hub.Close()
}

// originPatterns accepts WebSocket upgrades from the app origin's host.
func originPatterns(appOrigin string) []string {
	u, err := url.Parse(appOrigin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

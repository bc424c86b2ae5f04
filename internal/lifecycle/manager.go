// Package lifecycle versions the cache partitions: it precaches the static manifest at
// install and evicts stale partitions at activation.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/hpungsan/storysync/internal/clock"
	"github.com/hpungsan/storysync/internal/config"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/logging"
)

// State is a lifecycle phase.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
)

// Notifier is told when the edge takes control of connected view contexts.
type Notifier interface {
	NotifyActivated(ctx context.Context, version string)
}

// Options configures a Manager.
type Options struct {
	DB       *sql.DB
	Network  fetch.Fetcher
	Manifest *config.Manifest

	// AppOrigin resolves relative manifest entries.
	AppOrigin string

	// Keep lists the partitions that survive activation besides the static one.
	Keep []string

	Notifier Notifier
	Clock    clock.Clock
	Logger   logging.Logger
}

// InstallResult reports what install cached.
type InstallResult struct {
	Partition string   `json:"partition"`
	Cached    int      `json:"cached"`
	Failed    []string `json:"failed,omitempty"`
}

// ActivateResult reports what activation evicted.
type ActivateResult struct {
	Version string   `json:"version"`
	Deleted []string `json:"deleted"`
}

// Manager drives parsed → installing → installed → activating → activated.
type Manager struct {
	db       *sql.DB
	net      fetch.Fetcher
	manifest *config.Manifest
	origin   *url.URL
	keep     []string
	notifier Notifier
	clock    clock.Clock
	log      logging.Logger

	mu          sync.Mutex
	state       State
	skipWaiting bool
}

// NewManager returns a Manager in the parsed state.
func NewManager(opts Options) (*Manager, error) {
	origin, err := url.Parse(opts.AppOrigin)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid app origin %q", opts.AppOrigin)
	}
	manifest := opts.Manifest
	if manifest == nil {
		manifest = config.DefaultManifest()
	}
	m := &Manager{
		db:       opts.DB,
		net:      opts.Network,
		manifest: manifest,
		origin:   origin,
		keep:     opts.Keep,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		log:      opts.Logger,
		state:    StateParsed,
	}
	if m.clock == nil {
		m.clock = clock.SystemClock{}
	}
	if m.log == nil {
		m.log = logging.Nop()
	}
	return m, nil
}

// State returns the current phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Version is the manifest version.
func (m *Manager) Version() string {
	return m.manifest.Version
}

// StaticPartition is the partition this version installs into.
func (m *Manager) StaticPartition() string {
	return m.manifest.StaticPartition()
}

// Recognized is the set of partitions that survive activation.
func (m *Manager) Recognized() []string {
	names := append([]string{m.StaticPartition()}, m.keep...)
	slices.Sort(names)
	return slices.Compact(names)
}

// Install precaches every manifest asset into the static partition. A failing asset is
// logged and skipped; only a failure to create the partition or an unusable local store
// fails the install.
func (m *Manager) Install(ctx context.Context) (*InstallResult, error) {
	if !m.transition(StateInstalling, StateParsed, StateInstalled, StateActivated) {
		return nil, fmt.Errorf("cannot install while %s", m.State())
	}
	partition := m.StaticPartition()
	res := &InstallResult{Partition: partition}

	if err := db.EnsurePartition(ctx, m.db, partition, m.clock.Now()); err != nil {
		m.setState(StateParsed)
		return nil, err
	}

	for _, asset := range m.manifest.Assets {
		if err := m.precache(ctx, partition, asset); err != nil {
			m.log.Warn(ctx, "precache failed", "asset", asset, "error", err)
			res.Failed = append(res.Failed, asset)
			continue
		}
		res.Cached++
	}

	if err := db.CheckSchema(m.db); err != nil {
		m.setState(StateParsed)
		return nil, fmt.Errorf("local store: %w", err)
	}

	m.mu.Lock()
	m.state = StateInstalled
	m.skipWaiting = true
	m.mu.Unlock()

	m.log.Info(ctx, "installed", "partition", partition, "cached", res.Cached, "failed", len(res.Failed))
	return res, nil
}

// Activate deletes every partition outside the recognized set and claims connected
// view contexts. Deletion failures are logged and do not block activation.
// A store installed by an earlier process counts as installed.
func (m *Manager) Activate(ctx context.Context) (*ActivateResult, error) {
	if m.State() == StateParsed {
		ok, err := db.HasPartition(ctx, m.db, m.StaticPartition())
		if err != nil {
			return nil, err
		}
		if ok {
			m.setState(StateInstalled)
		}
	}
	if !m.transition(StateActivating, StateInstalled, StateActivated) {
		return nil, fmt.Errorf("cannot activate while %s", m.State())
	}

	res := &ActivateResult{Version: m.Version(), Deleted: []string{}}
	recognized := m.Recognized()

	partitions, err := db.ListPartitions(ctx, m.db)
	if err != nil {
		m.log.Warn(ctx, "listing partitions failed", "error", err)
	}
	for _, p := range partitions {
		if slices.Contains(recognized, p.Name) {
			continue
		}
		if err := db.DeletePartition(ctx, m.db, p.Name); err != nil {
			m.log.Warn(ctx, "deleting stale partition failed", "partition", p.Name, "error", err)
			continue
		}
		m.log.Info(ctx, "deleted stale partition", "partition", p.Name)
		res.Deleted = append(res.Deleted, p.Name)
	}

	m.setState(StateActivated)
	if m.notifier != nil {
		m.notifier.NotifyActivated(ctx, m.Version())
	}
	return res, nil
}

// SkipWaiting activates an installed edge. It is a no-op once activated.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	switch m.State() {
	case StateActivated:
		return nil
	case StateInstalled:
		_, err := m.Activate(ctx)
		return err
	default:
		return fmt.Errorf("skip waiting while %s", m.State())
	}
}

// Start installs and, since install marks skip-waiting, activates right away.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.Install(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	skip := m.skipWaiting
	m.mu.Unlock()
	if !skip {
		return nil
	}
	_, err := m.Activate(ctx)
	return err
}

func (m *Manager) precache(ctx context.Context, partition, asset string) error {
	ref, err := url.Parse(asset)
	if err != nil {
		return err
	}
	req := &fetch.Request{Method: http.MethodGet, URL: m.origin.ResolveReference(ref).String()}
	resp, err := m.net.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("status %d", resp.Status)
	}
	if resp.Truncated {
		return fmt.Errorf("body exceeds %d bytes", fetch.MaxBodyBytes)
	}
	return db.PutEntry(ctx, m.db, &db.CacheEntry{
		Partition: partition,
		Key:       req.Key(),
		URL:       req.URL,
		Status:    resp.Status,
		Header:    resp.Header,
		Body:      resp.Body,
		StoredAt:  m.clock.Now(),
	})
}

// transition moves to next if the current state is one of from.
func (m *Manager) transition(next State, from ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(from, m.state) {
		return false
	}
	m.state = next
	return true
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

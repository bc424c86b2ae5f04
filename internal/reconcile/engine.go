// Package reconcile replays pending stories against the remote API and prunes the ones
// the server acknowledged.
package reconcile

import (
	"context"
	"database/sql"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/storysync/internal/api"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/logging"
	"github.com/hpungsan/storysync/internal/story"
)

// Result counts one pass: Synced of Total pending records were acknowledged.
type Result struct {
	Synced int `json:"synced"`
	Total  int `json:"total"`
}

// Uploader creates a story on the remote API.
type Uploader interface {
	CreateStory(ctx context.Context, token string, f story.Fields) (*api.Ack, error)
}

// TokenSource supplies the credential for a pass.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Notifier is told about finished passes.
type Notifier interface {
	NotifySyncComplete(ctx context.Context, count, total int)
}

// Engine runs reconciliation passes one at a time.
type Engine struct {
	db          *sql.DB
	uploader    Uploader
	creds       TokenSource
	notifier    Notifier
	concurrency int
	log         logging.Logger

	mu   sync.Mutex
	kick chan struct{}
}

// NewEngine returns an Engine. notifier may be nil.
func NewEngine(sqlDB *sql.DB, uploader Uploader, creds TokenSource, notifier Notifier, concurrency int, log logging.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		db:          sqlDB,
		uploader:    uploader,
		creds:       creds,
		notifier:    notifier,
		concurrency: concurrency,
		log:         log,
		kick:        make(chan struct{}, 1),
	}
}

// Reconcile runs one pass and blocks while another pass is in progress.
//
// The local store is read once. Pending records are uploaded concurrently and each
// upload settles on its own; only records whose response carried "error": false are
// deleted. Store-read and credential failures abort the pass before any upload.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := db.ListStories(ctx, e.db)
	if err != nil {
		e.log.Error(ctx, "reconcile: reading local store failed", "error", err)
		return Result{}, err
	}
	pending := story.FilterPending(records, true)
	if len(pending) == 0 {
		e.log.Debug(ctx, "reconcile: nothing pending")
		return Result{}, nil
	}
	res := Result{Total: len(pending)}

	token, err := e.creds.Token(ctx)
	if err != nil {
		e.log.Warn(ctx, "reconcile: no usable credential", "pending", len(pending), "error", err)
		return res, err
	}

	accepted := make([]bool, len(pending))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i := range pending {
		rec := pending[i]
		g.Go(func() error {
			ack, err := e.uploader.CreateStory(ctx, token, rec.Fields())
			switch {
			case err != nil:
				e.log.Info(ctx, "reconcile: upload failed", "id", rec.ID, "error", err)
			case !ack.Accepted:
				e.log.Info(ctx, "reconcile: upload rejected", "id", rec.ID, "status", ack.Status, "message", ack.Message)
			default:
				accepted[i] = true
			}
			// Failures stay local for the next pass.
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range pending {
		if !accepted[i] {
			continue
		}
		if e.settle(ctx, rec) {
			res.Synced++
		}
	}

	if e.notifier != nil {
		e.notifier.NotifySyncComplete(ctx, res.Synced, res.Total)
	}
	e.log.Info(ctx, "reconcile finished", "synced", res.Synced, "total", res.Total)
	return res, nil
}

// settle removes an accepted record. If the delete fails the record is flipped to
// pending=false so the next pass does not upload it again. It reports false only when
// the record is still pending.
func (e *Engine) settle(ctx context.Context, rec story.Record) bool {
	err := db.DeleteStory(ctx, e.db, rec.ID)
	if err == nil || errors.Is(err, errors.ErrNotFound) {
		return true
	}
	e.log.Warn(ctx, "reconcile: deleting synced story failed, marking it synced", "id", rec.ID, "error", err)

	rec.Pending = false
	if err := db.PutStory(ctx, e.db, &rec); err != nil {
		e.log.Error(ctx, "reconcile: accepted story is still pending and will be uploaded again",
			"id", rec.ID, "error", err)
		return false
	}
	return true
}

// Trigger requests a pass from Run without blocking. Triggers that arrive while a pass
// is queued or running collapse into a single follow-up pass.
func (e *Engine) Trigger() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run serves triggers until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
			if _, err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
				e.log.Debug(ctx, "triggered reconcile aborted", "error", err)
			}
		}
	}
}

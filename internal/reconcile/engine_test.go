package reconcile

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/storysync/internal/api"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/story"
)

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.NewNoCredential("none")
	}
	return string(s), nil
}

// fakeUploader decides per description whether the server accepts a story.
type fakeUploader struct {
	mu       sync.Mutex
	offline  bool
	reject   map[string]bool
	uploaded []string
	tokens   []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (u *fakeUploader) CreateStory(ctx context.Context, token string, f story.Fields) (*api.Ack, error) {
	n := u.inFlight.Add(1)
	defer u.inFlight.Add(-1)
	for {
		m := u.maxSeen.Load()
		if n <= m || u.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if u.delay > 0 {
		time.Sleep(u.delay)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.offline {
		return nil, stderrors.New("dial tcp: network is unreachable")
	}
	u.uploaded = append(u.uploaded, f.Description)
	u.tokens = append(u.tokens, token)
	if u.reject[f.Description] {
		return &api.Ack{Status: 400, Message: "photo is required", Accepted: false}, nil
	}
	return &api.Ack{Status: 201, Message: "Story created successfully", Accepted: true}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][2]int
}

func (n *recordingNotifier) NotifySyncComplete(ctx context.Context, count, total int) {
	n.mu.Lock()
	n.calls = append(n.calls, [2]int{count, total})
	n.mu.Unlock()
}

func (n *recordingNotifier) all() [][2]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][2]int(nil), n.calls...)
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func addPending(t *testing.T, sqlDB *sql.DB, description string) string {
	t.Helper()
	now := time.Now()
	id, err := story.NewLocalID(now)
	require.NoError(t, err)
	require.NoError(t, db.PutStory(context.Background(), sqlDB, story.NewPending(id, story.Fields{Description: description}, now)))
	return id
}

func remainingIDs(t *testing.T, sqlDB *sql.DB) []string {
	t.Helper()
	all, err := db.ListStories(context.Background(), sqlDB)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	return ids
}

func TestReconcile_NothingPending(t *testing.T) {
	sqlDB := openDB(t)
	require.NoError(t, db.PutStory(context.Background(), sqlDB, &story.Record{ID: "story-1", Name: "synced", CreatedAt: time.Now()}))
	up := &fakeUploader{}
	n := &recordingNotifier{}
	e := NewEngine(sqlDB, up, staticToken("t"), n, 4, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, up.uploaded)
	assert.Empty(t, n.all(), "no notification when nothing is pending")
	assert.Equal(t, []string{"story-1"}, remainingIDs(t, sqlDB))
}

// A pass while the network is still down leaves the record and reports 0 of 1.
func TestReconcile_StillOffline(t *testing.T) {
	sqlDB := openDB(t)
	id := addPending(t, sqlDB, "offline story")
	n := &recordingNotifier{}
	e := NewEngine(sqlDB, &fakeUploader{offline: true}, staticToken("t"), n, 4, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 0, Total: 1}, res)
	assert.Equal(t, []string{id}, remainingIDs(t, sqlDB))
	assert.Equal(t, [][2]int{{0, 1}}, n.all())
}

// Once the network and a credential are back, an accepted record is removed.
func TestReconcile_Accepted(t *testing.T) {
	sqlDB := openDB(t)
	addPending(t, sqlDB, "offline story")
	up := &fakeUploader{}
	n := &recordingNotifier{}
	e := NewEngine(sqlDB, up, staticToken("bearer-1"), n, 4, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Total: 1}, res)
	assert.Empty(t, remainingIDs(t, sqlDB))
	assert.Equal(t, [][2]int{{1, 1}}, n.all())
	assert.Equal(t, []string{"bearer-1"}, up.tokens)
}

// A rejected upload does not affect the others in the same pass.
func TestReconcile_PartialFailure(t *testing.T) {
	sqlDB := openDB(t)
	addPending(t, sqlDB, "first")
	second := addPending(t, sqlDB, "second")
	n := &recordingNotifier{}
	e := NewEngine(sqlDB, &fakeUploader{reject: map[string]bool{"second": true}}, staticToken("t"), n, 4, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Total: 2}, res)
	assert.Equal(t, []string{second}, remainingIDs(t, sqlDB))
	assert.Equal(t, [][2]int{{1, 2}}, n.all())
}

func TestReconcile_Idempotent(t *testing.T) {
	sqlDB := openDB(t)
	addPending(t, sqlDB, "a")
	require.NoError(t, db.PutStory(context.Background(), sqlDB, &story.Record{ID: "story-x", Name: "x", CreatedAt: time.Now()}))
	e := NewEngine(sqlDB, &fakeUploader{}, staticToken("t"), nil, 4, nil)

	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	before := remainingIDs(t, sqlDB)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, before, remainingIDs(t, sqlDB))
}

func TestReconcile_SyncedRecordsNeverUploaded(t *testing.T) {
	sqlDB := openDB(t)
	require.NoError(t, db.PutStory(context.Background(), sqlDB, &story.Record{ID: "story-x", Name: "x", Description: "server copy", CreatedAt: time.Now()}))
	addPending(t, sqlDB, "mine")
	up := &fakeUploader{}
	e := NewEngine(sqlDB, up, staticToken("t"), nil, 4, nil)

	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, up.uploaded)
}

func TestReconcile_NoCredentialAborts(t *testing.T) {
	sqlDB := openDB(t)
	id := addPending(t, sqlDB, "a")
	up := &fakeUploader{}
	n := &recordingNotifier{}
	e := NewEngine(sqlDB, up, staticToken(""), n, 4, nil)

	res, err := e.Reconcile(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoCredential))
	assert.Equal(t, Result{Synced: 0, Total: 1}, res)
	assert.Empty(t, up.uploaded)
	assert.Empty(t, n.all())
	assert.Equal(t, []string{id}, remainingIDs(t, sqlDB))
}

func TestReconcile_StoreReadFailureAborts(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectQuery("SELECT id, title").WillReturnError(stderrors.New("file is not a database"))

	up := &fakeUploader{}
	e := NewEngine(mockDB, up, staticToken("t"), nil, 4, nil)

	_, err = e.Reconcile(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreFailed))
	assert.Empty(t, up.uploaded)
}

func storyRows(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "lat", "lon",
		"photo", "photo_name", "photo_type", "photo_url",
		"created_at", "pending",
	}).AddRow(id, "Untitled", "offline story", 0.0, 0.0, nil, nil, nil, nil, int64(1700000000000), 1)
}

func TestReconcile_DeleteFailureMarksSynced(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectQuery("SELECT id, title").WillReturnRows(storyRows("local-1"))
	mock.ExpectExec("DELETE FROM stories").WillReturnError(stderrors.New("database is locked"))
	mock.ExpectExec("INSERT INTO stories").
		WithArgs("local-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := NewEngine(mockDB, &fakeUploader{}, staticToken("t"), nil, 1, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Total: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_UnsettledRecordNotCounted(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectQuery("SELECT id, title").WillReturnRows(storyRows("local-1"))
	mock.ExpectExec("DELETE FROM stories").WillReturnError(stderrors.New("disk I/O error"))
	mock.ExpectExec("INSERT INTO stories").WillReturnError(stderrors.New("disk I/O error"))

	n := &recordingNotifier{}
	e := NewEngine(mockDB, &fakeUploader{}, staticToken("t"), n, 1, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 0, Total: 1}, res)
	assert.Equal(t, [][2]int{{0, 1}}, n.all())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_BoundedConcurrency(t *testing.T) {
	sqlDB := openDB(t)
	for i := 0; i < 8; i++ {
		addPending(t, sqlDB, "s")
	}
	up := &fakeUploader{delay: 20 * time.Millisecond}
	e := NewEngine(sqlDB, up, staticToken("t"), nil, 2, nil)

	res, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, res.Synced)
	assert.LessOrEqual(t, up.maxSeen.Load(), int32(2))
	assert.GreaterOrEqual(t, up.maxSeen.Load(), int32(1))
}

func TestTrigger_Coalesces(t *testing.T) {
	sqlDB := openDB(t)
	e := NewEngine(sqlDB, &fakeUploader{}, staticToken("t"), nil, 1, nil)

	e.Trigger()
	e.Trigger()
	e.Trigger()
	assert.Len(t, e.kick, 1)
}

func TestRun_ProcessesTriggers(t *testing.T) {
	sqlDB := openDB(t)
	addPending(t, sqlDB, "a")
	n := &recordingNotifier{}
	e := NewEngine(sqlDB, &fakeUploader{}, staticToken("t"), n, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	e.Trigger()
	require.Eventually(t, func() bool { return len(n.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, remainingIDs(t, sqlDB))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

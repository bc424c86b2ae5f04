package ops

import (
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/storysync/internal/clock"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/offline"
	"github.com/hpungsan/storysync/internal/story"
)

type recordingDeferrer struct {
	tags []string
	err  error
}

func (d *recordingDeferrer) Defer(tag string) error {
	d.tags = append(d.tags, tag)
	return d.err
}

func newStorer(t *testing.T) (*offline.Handler, *recordingDeferrer) {
	t.Helper()
	database := openDB(t)
	clk := clock.NewFixed(time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))
	return offline.NewHandler(database, nil, nil, clk, nil), &recordingDeferrer{}
}

func TestStore_PendingArmsSync(t *testing.T) {
	h, d := newStorer(t)

	out, err := Store(context.Background(), h, d, StoreInput{Description: "Pagi di Bromo", Lat: -7.9, Lon: 112.9})
	require.NoError(t, err)
	assert.True(t, story.IsLocalID(out.ID))
	assert.True(t, out.Pending)
	assert.True(t, out.Armed)
	assert.Equal(t, []string{offline.SyncTag}, d.tags)
}

func TestStore_ServerCopyIsSynced(t *testing.T) {
	h, d := newStorer(t)

	out, err := Store(context.Background(), h, d, StoreInput{ID: "story-42", Description: "mirrored"})
	require.NoError(t, err)
	assert.Equal(t, "story-42", out.ID)
	assert.False(t, out.Pending)
	assert.False(t, out.Armed)
	assert.Empty(t, d.tags)
}

func TestStore_ArmFailureNotFatal(t *testing.T) {
	h, d := newStorer(t)
	d.err = stderrors.New("no scheduler")

	out, err := Store(context.Background(), h, d, StoreInput{Description: "x"})
	require.NoError(t, err)
	assert.True(t, out.Pending)
	assert.False(t, out.Armed)
}

func TestStore_Validation(t *testing.T) {
	h, _ := newStorer(t)
	tests := []struct {
		name  string
		input StoreInput
	}{
		{"missing description", StoreInput{Name: "n"}},
		{"lat out of range", StoreInput{Description: "d", Lat: 91}},
		{"lon out of range", StoreInput{Description: "d", Lon: -181}},
		{"lat not a number", StoreInput{Description: "d", Lat: math.NaN()}},
		{"lon infinite", StoreInput{Description: "d", Lon: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Store(context.Background(), h, nil, tt.input)
			assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestStore_WithPhotoPath(t *testing.T) {
	database := openDB(t)
	h := offline.NewHandler(database, nil, nil, nil, nil)
	path := filepath.Join(t.TempDir(), "beach.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))

	out, err := Store(context.Background(), h, nil, StoreInput{Description: "d", PhotoPath: path})
	require.NoError(t, err)

	got, err := db.GetStory(context.Background(), database, out.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Photo)
	assert.Equal(t, "beach.png", got.Photo.Filename)
	assert.Equal(t, "image/png", got.Photo.ContentType)
}

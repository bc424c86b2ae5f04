package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/errors"
)

func TestDelete_ByID(t *testing.T) {
	database := openDB(t)
	ids := seed(t, database, true, 2)
	ctx := context.Background()

	output, err := Delete(ctx, database, DeleteInput{ID: ids[0]})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !output.Deleted {
		t.Error("Deleted = false, want true")
	}
	if output.ID != ids[0] {
		t.Errorf("ID = %q, want %q", output.ID, ids[0])
	}

	_, err = db.GetStory(ctx, database, ids[0])
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetStory after delete should return ErrNotFound, got: %v", err)
	}
	if _, err := db.GetStory(ctx, database, ids[1]); err != nil {
		t.Errorf("other story should survive, got: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	_, err := Delete(context.Background(), openDB(t), DeleteInput{ID: "local-missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestDelete_RequiresID(t *testing.T) {
	_, err := Delete(context.Background(), openDB(t), DeleteInput{ID: "  "})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

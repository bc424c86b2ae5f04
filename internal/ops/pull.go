package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/storysync/internal/api"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/reconcile"
	"github.com/hpungsan/storysync/internal/story"
)

// DefaultPullSize is the page size used when PullInput.Size is zero.
const DefaultPullSize = 20

// Lister fetches server stories.
type Lister interface {
	ListStories(ctx context.Context, token string, opts api.ListOptions) ([]story.Record, error)
}

// PullInput contains parameters for the Pull operation.
type PullInput struct {
	Page     int
	Size     int
	Location bool
}

// PullOutput contains the result of the Pull operation.
type PullOutput struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
}

// Pull mirrors one page of server stories into the local store as synced records, so
// the offline story list has something to serve.
func Pull(ctx context.Context, database *sql.DB, l Lister, tokens reconcile.TokenSource, input PullInput) (*PullOutput, error) {
	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	size := input.Size
	if size <= 0 {
		size = DefaultPullSize
	}
	records, err := l.ListStories(ctx, token, api.ListOptions{
		Page:     max(input.Page, 1),
		Size:     size,
		Location: input.Location,
	})
	if err != nil {
		return nil, err
	}

	out := &PullOutput{Fetched: len(records)}
	for i := range records {
		r := records[i]
		if r.ID == "" || story.IsLocalID(r.ID) {
			continue
		}
		r.Pending = false
		if err := db.PutStory(ctx, database, &r); err != nil {
			return out, err
		}
		out.Stored++
	}
	return out, nil
}

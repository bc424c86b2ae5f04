package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/story"
)

// Story filters for List.
const (
	FilterAll     = "all"
	FilterPending = "pending"
	FilterSynced  = "synced"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Filter string // all (default), pending, synced
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []StorySummary `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Pending    int            `json:"pending"`
	Sort       string         `json:"sort"`
}

// List returns a snapshot of the local store, oldest first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	filter := input.Filter
	if filter == "" {
		filter = FilterAll
	}
	if filter != FilterAll && filter != FilterPending && filter != FilterSynced {
		return nil, errors.NewInvalidRequest("filter must be one of: all, pending, synced")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	records, err := db.ListStories(ctx, database)
	if err != nil {
		return nil, err
	}
	pending := len(story.FilterPending(records, true))

	switch filter {
	case FilterPending:
		records = story.FilterPending(records, true)
	case FilterSynced:
		records = story.FilterPending(records, false)
	}

	total := len(records)
	start := min(offset, total)
	end := min(start+limit, total)

	items := make([]StorySummary, 0, end-start)
	for _, r := range records[start:end] {
		items = append(items, Summarize(r))
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
		Pending: pending,
		Sort:    "created_at_asc",
	}, nil
}

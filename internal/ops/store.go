package ops

import (
	"context"
	"math"
	"strings"

	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/offline"
	"github.com/hpungsan/storysync/internal/story"
)

// Storer persists stories through the offline submission path.
type Storer interface {
	Store(ctx context.Context, rec *story.Record) (*story.Record, error)
}

// StoreInput contains parameters for the Store operation.
type StoreInput struct {
	ID          string // optional; empty or local ids store a pending story
	Name        string // default: "Untitled"
	Description string // required
	Lat         float64
	Lon         float64
	PhotoPath   string // optional local image file
	Photo       *story.Photo
}

// StoreOutput contains the result of the Store operation.
type StoreOutput struct {
	ID      string `json:"id"`
	Pending bool   `json:"pending"`
	Armed   bool   `json:"armed"`
}

// Store saves a story the way a STORE_STORY message does. Pending stories arm the
// deferred sync task when d is non-nil; arming failures are not fatal.
func Store(ctx context.Context, s Storer, d offline.Deferrer, input StoreInput) (*StoreOutput, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, errors.NewInvalidRequest("description is required")
	}
	if math.IsNaN(input.Lat) || math.IsNaN(input.Lon) ||
		input.Lat < -90 || input.Lat > 90 || input.Lon < -180 || input.Lon > 180 {
		return nil, errors.NewInvalidRequest("lat must be within [-90, 90] and lon within [-180, 180]")
	}

	photo := input.Photo
	if input.PhotoPath != "" {
		var err error
		photo, err = ReadPhoto(input.PhotoPath)
		if err != nil {
			return nil, err
		}
	}

	rec, err := s.Store(ctx, &story.Record{
		ID:          strings.TrimSpace(input.ID),
		Name:        input.Name,
		Description: input.Description,
		Lat:         input.Lat,
		Lon:         input.Lon,
		Photo:       photo,
	})
	if err != nil {
		return nil, err
	}

	out := &StoreOutput{ID: rec.ID, Pending: rec.Pending}
	if rec.Pending && d != nil {
		out.Armed = d.Defer(offline.SyncTag) == nil
	}
	return out, nil
}

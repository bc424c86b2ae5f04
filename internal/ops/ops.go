// Package ops holds the view-layer operations shared by the CLI, MCP tools and web UI.
package ops

import (
	"time"

	"github.com/hpungsan/storysync/internal/story"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// StorySummary is a story without its photo bytes.
type StorySummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	HasPhoto    bool      `json:"has_photo"`
	PhotoName   string    `json:"photo_name,omitempty"`
	PhotoBytes  int       `json:"photo_bytes,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Pending     bool      `json:"pending"`
}

// Summarize drops the photo payload from r.
func Summarize(r story.Record) StorySummary {
	s := StorySummary{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Lat:         r.Lat,
		Lon:         r.Lon,
		PhotoURL:    r.PhotoURL,
		CreatedAt:   r.CreatedAt,
		Pending:     r.Pending,
	}
	if r.Photo != nil {
		s.HasPhoto = true
		s.PhotoName = r.Photo.Filename
		s.PhotoBytes = len(r.Photo.Data)
	}
	return s
}

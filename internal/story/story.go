package story

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// LocalIDPrefix marks identifiers minted on this machine. Server ids look like "story-…",
// so the two spaces never collide.
const LocalIDPrefix = "local-"

// Record is a story held in the local store.
// Pending records were authored offline and wait for reconciliation; records with
// Pending=false are server-confirmed copies kept as a read cache.
type Record struct {
	// ID is the local store key: LocalIDPrefix+ULID for pending records,
	// the server id for mirrored ones.
	ID string `json:"id"`

	// Name is the story title (form field "name" or "title").
	Name string `json:"name"`

	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`

	// Photo is the attached image for pending records (nil if none was sent).
	Photo *Photo `json:"photo,omitempty"`

	// PhotoURL is set on server-confirmed records.
	PhotoURL string `json:"photoUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	Pending   bool      `json:"pending"`
}

// Photo is an uploaded image kept alongside a pending record.
type Photo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"data,omitempty"`
}

// Fields is the parsed form payload of a story submission.
type Fields struct {
	Name        string
	Description string
	Lat         float64
	Lon         float64
	Photo       *Photo
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewLocalID mints a time-ordered identifier for a record created at now.
// IDs minted within the same millisecond are still strictly increasing.
func NewLocalID(now time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return LocalIDPrefix + id.String(), nil
}

// IsLocalID reports whether id was minted by NewLocalID.
func IsLocalID(id string) bool {
	rest, ok := strings.CutPrefix(id, LocalIDPrefix)
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// NewPending builds a pending record from submitted fields.
func NewPending(id string, f Fields, now time.Time) *Record {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "Untitled"
	}
	return &Record{
		ID:          id,
		Name:        name,
		Description: f.Description,
		Lat:         f.Lat,
		Lon:         f.Lon,
		Photo:       f.Photo,
		CreatedAt:   now.UTC(),
		Pending:     true,
	}
}

// Fields returns the submission payload carried by r.
func (r *Record) Fields() Fields {
	return Fields{
		Name:        r.Name,
		Description: r.Description,
		Lat:         r.Lat,
		Lon:         r.Lon,
		Photo:       r.Photo,
	}
}

// FilterPending returns the records whose Pending flag equals pending, preserving order.
func FilterPending(records []Record, pending bool) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Pending == pending {
			out = append(out, r)
		}
	}
	return out
}

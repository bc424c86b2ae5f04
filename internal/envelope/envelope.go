// Package envelope defines the JSON envelopes the edge synthesizes for the view layer.
//
// Every synthesized body is one of three shapes:
//
//	Ok:        {"error":false,"message":...,"<key>":data}   live or locally accepted data
//	OfflineOk: {"error":false,"message":...,"<key>":data}   substitute data served while offline
//	Error:     {"error":true,"message":...}                 nothing could be served
//
// The HTTP status carries the code. Offline substitution is never flagged as an error.
package envelope

import (
	"encoding/json"
	"net/http"

	"github.com/hpungsan/storysync/internal/fetch"
)

// Kind discriminates the envelope variants.
type Kind int

const (
	KindOk Kind = iota
	KindOfflineOk
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindOfflineOk:
		return "offline_ok"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Canonical messages.
const (
	MsgOfflineData      = "Showing offline data"
	MsgNoCachedData     = "Network error and no cached data available"
	MsgSavedOffline     = "Story saved offline, will sync when online"
	MsgSaveFailed       = "Failed to save story offline"
	MsgMutationOffline  = "Network error: Unable to complete request offline"
	MsgNoCache          = "Network error and no cache available"
	MsgTileNotAvailable = "Tile not available offline"
)

// Payload keys used by the story API.
const (
	KeyData      = "data"
	KeyListStory = "listStory"
)

// Envelope is the tagged union. Construct it with Ok, OfflineOk or Error.
type Envelope struct {
	kind    Kind
	status  int
	message string
	key     string
	data    any
}

// Ok is a success envelope with status 200. An empty key omits the payload.
func Ok(message, key string, data any) Envelope {
	return Envelope{kind: KindOk, status: http.StatusOK, message: message, key: key, data: data}
}

// OfflineOk is a success envelope built from local or cached data, status 200.
func OfflineOk(message, key string, data any) Envelope {
	return Envelope{kind: KindOfflineOk, status: http.StatusOK, message: message, key: key, data: data}
}

// Error is an unavailability envelope with the given status code.
func Error(message string, status int) Envelope {
	return Envelope{kind: KindError, status: status, message: message}
}

func (e Envelope) Kind() Kind      { return e.kind }
func (e Envelope) Status() int     { return e.status }
func (e Envelope) Message() string { return e.message }

// MarshalJSON is the single serialization step for every variant.
func (e Envelope) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"error":   e.kind == KindError,
		"message": e.message,
	}
	if e.kind != KindError && e.key != "" {
		body[e.key] = e.data
	}
	return json.Marshal(body)
}

// Response renders the envelope as a synthesized JSON response.
func (e Envelope) Response() *fetch.Response {
	body, err := json.Marshal(e)
	if err != nil {
		body = []byte(`{"error":true,"message":"internal error"}`)
		return &fetch.Response{
			Status: http.StatusInternalServerError,
			Header: jsonHeader(),
			Body:   body,
			Source: fetch.SourceSynthesized,
		}
	}

	source := fetch.SourceSynthesized
	if e.kind == KindOfflineOk {
		source = fetch.SourceLocal
	}
	return &fetch.Response{
		Status: e.status,
		Header: jsonHeader(),
		Body:   body,
		Source: source,
	}
}

// Empty is a bodiless response, used where the caller expects binary content.
func Empty(status int, statusText string) *fetch.Response {
	h := http.Header{}
	h.Set("X-Status-Text", statusText)
	return &fetch.Response{Status: status, Header: h, Source: fetch.SourceSynthesized}
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	return h
}

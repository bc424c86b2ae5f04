// Package clients keeps the registry of connected view contexts and carries the
// cross-context messages exchanged with them.
package clients

import "github.com/hpungsan/storysync/internal/story"

// Type is the message discriminator.
type Type string

const (
	// TypeStoreStory asks the edge to persist a story (view → edge).
	TypeStoreStory Type = "STORE_STORY"
	// TypeGetAuthToken asks a view context for its credential (edge → view).
	TypeGetAuthToken Type = "GET_AUTH_TOKEN"
	// TypeAuthToken answers GET_AUTH_TOKEN (view → edge).
	TypeAuthToken Type = "AUTH_TOKEN"
	// TypeSyncComplete reports a finished reconciliation pass (edge → view).
	TypeSyncComplete Type = "SYNC_COMPLETE"
	// TypeSkipWaiting asks a freshly installed edge to activate (view → edge).
	TypeSkipWaiting Type = "SKIP_WAITING"
	// TypeActivated announces that the edge took control (edge → view).
	TypeActivated Type = "ACTIVATED"
	// TypeNotification relays a push notification (edge → view).
	TypeNotification Type = "NOTIFICATION"
)

// Message is the flat JSON object exchanged over the socket. Only the fields relevant
// to Type are set.
type Message struct {
	Type      Type          `json:"type"`
	RequestID string        `json:"requestId,omitempty"`
	Token     string        `json:"token,omitempty"`
	Story     *story.Record `json:"story,omitempty"`
	Count     *int          `json:"count,omitempty"`
	Total     *int          `json:"total,omitempty"`
	Version   string        `json:"version,omitempty"`

	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}

// SyncComplete builds a SYNC_COMPLETE message.
func SyncComplete(count, total int) Message {
	return Message{Type: TypeSyncComplete, Count: &count, Total: &total}
}

// Activated builds an ACTIVATED message.
func Activated(version string) Message {
	return Message{Type: TypeActivated, Version: version}
}

// Notification builds a NOTIFICATION message, filling the defaults the client app expects.
func Notification(title, body, url string) Message {
	if title == "" {
		title = "Notifikasi Baru"
	}
	if body == "" {
		body = "Anda punya notifikasi baru!"
	}
	if url == "" {
		url = "/"
	}
	return Message{Type: TypeNotification, Title: title, Body: body, URL: url}
}

// Package classify maps an intercepted request to the resource class that decides its
// caching strategy.
package classify

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Class is a resource class.
type Class int

const (
	Passthrough Class = iota
	Static
	APIData
	MapTile
	OfflineSubmission
)

func (c Class) String() string {
	switch c {
	case Static:
		return "static"
	case APIData:
		return "api-data"
	case MapTile:
		return "map-tile"
	case OfflineSubmission:
		return "offline-submission"
	default:
		return "passthrough"
	}
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	apiHost  string
	tileHost string
	static   map[string]bool
}

// New builds a classifier. Relative manifest assets resolve against appOrigin.
func New(apiBaseURL, tileHost, appOrigin string, assets []string) (*Classifier, error) {
	api, err := url.Parse(apiBaseURL)
	if err != nil || api.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", apiBaseURL)
	}
	origin, err := url.Parse(appOrigin)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid app origin %q", appOrigin)
	}

	c := &Classifier{
		apiHost:  hostKey(api),
		tileHost: strings.ToLower(strings.TrimSpace(tileHost)),
		static:   make(map[string]bool, len(assets)),
	}
	for _, a := range assets {
		ref, err := url.Parse(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("invalid manifest asset %q: %w", a, err)
		}
		c.static[staticKey(origin.ResolveReference(ref))] = true
	}
	return c, nil
}

// Classify returns the class of (method, rawURL). It is total: anything it cannot
// parse is Passthrough.
func (c *Classifier) Classify(method, rawURL string) Class {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Passthrough
	}
	host := hostKey(u)

	if isMutation(method) {
		if host == c.apiHost {
			return OfflineSubmission
		}
		return Passthrough
	}
	if method != http.MethodGet {
		return Passthrough
	}

	if c.isTileHost(host) {
		return MapTile
	}
	if host == c.apiHost {
		return APIData
	}
	if c.static[staticKey(u)] {
		return Static
	}
	return Passthrough
}

func (c *Classifier) isTileHost(host string) bool {
	if c.tileHost == "" {
		return false
	}
	return host == c.tileHost || strings.HasSuffix(host, "."+c.tileHost)
}

// IsStoryList reports a story-list read: a path ending in /stories with no story id.
func IsStoryList(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), "/stories")
}

// IsStoryCreate reports a story-creation submission: a POST to any path with a "stories"
// segment, so /stories and /stories/guest both qualify.
func IsStoryCreate(method, rawURL string) bool {
	if method != http.MethodPost {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return slices.Contains(strings.Split(u.Path, "/"), "stories")
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// hostKey is the lowercased host with any non-default port kept.
func hostKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		return host
	}
	return host + ":" + port
}

// staticKey is scheme://host/path with the query and fragment dropped.
func staticKey(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.ToLower(u.Scheme) + "://" + hostKey(u) + path
}

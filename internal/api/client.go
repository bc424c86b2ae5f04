// Package api is a client for the remote story API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/story"
)

// Client talks to the story API rooted at BaseURL (e.g. https://story-api.dicoding.dev/v1).
type Client struct {
	baseURL string
	fetcher fetch.Fetcher
}

// New returns a Client. The fetcher carries transport timeouts.
func New(baseURL string, fetcher fetch.Fetcher) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		fetcher: fetcher,
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StoriesURL is the collection endpoint.
func (c *Client) StoriesURL() string {
	return c.baseURL + "/stories"
}

// Ack is the server's answer to a mutation.
type Ack struct {
	Status  int
	Message string

	// Accepted is true only when the body is JSON with "error": false.
	Accepted bool
}

// Accepted reports whether body is a JSON object whose "error" field is exactly false.
func Accepted(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	return gjson.GetBytes(body, "error").Type == gjson.False
}

// CreateStory uploads fields as multipart POST /stories with a bearer token.
// A transport failure is returned as an error; any HTTP answer becomes an Ack.
func (c *Client) CreateStory(ctx context.Context, token string, f story.Fields) (*Ack, error) {
	body, contentType, err := EncodeMultipart(f)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Accept", "application/json")
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.fetcher.Fetch(ctx, &fetch.Request{
		Method: http.MethodPost,
		URL:    c.StoriesURL(),
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	return &Ack{
		Status:   resp.Status,
		Message:  gjson.GetBytes(resp.Body, "message").String(),
		Accepted: Accepted(resp.Body),
	}, nil
}

// ListOptions are the query parameters of GET /stories.
type ListOptions struct {
	Page     int
	Size     int
	Location bool
}

// remoteStory is one element of listStory.
type remoteStory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
}

// ListStories fetches one page of server stories. Returned records have Pending=false.
func (c *Client) ListStories(ctx context.Context, token string, opts ListOptions) ([]story.Record, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size > 0 {
		q.Set("size", strconv.Itoa(opts.Size))
	}
	if opts.Location {
		q.Set("location", "1")
	}
	u := c.StoriesURL()
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.fetcher.Fetch(ctx, &fetch.Request{Method: http.MethodGet, URL: u, Header: header})
	if err != nil {
		return nil, err
	}
	if !resp.OK() || !Accepted(resp.Body) {
		msg := gjson.GetBytes(resp.Body, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.Status)
		}
		return nil, errors.NewUpstream(resp.Status, msg)
	}

	var remote []remoteStory
	list := gjson.GetBytes(resp.Body, "listStory")
	if list.Exists() {
		if err := json.Unmarshal([]byte(list.Raw), &remote); err != nil {
			return nil, errors.NewUpstream(resp.Status, fmt.Sprintf("decode listStory: %v", err))
		}
	}

	records := make([]story.Record, 0, len(remote))
	for _, s := range remote {
		r := story.Record{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			PhotoURL:    s.PhotoURL,
			CreatedAt:   s.CreatedAt.UTC(),
		}
		if s.Lat != nil {
			r.Lat = *s.Lat
		}
		if s.Lon != nil {
			r.Lon = *s.Lon
		}
		records = append(records, r)
	}
	return records, nil
}

// EncodeMultipart renders story fields as the multipart body POST /stories expects.
func EncodeMultipart(f story.Fields) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("description", f.Description); err != nil {
		return nil, "", err
	}
	if f.Name != "" {
		if err := w.WriteField("name", f.Name); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField("lat", strconv.FormatFloat(f.Lat, 'f', -1, 64)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("lon", strconv.FormatFloat(f.Lon, 'f', -1, 64)); err != nil {
		return nil, "", err
	}

	if f.Photo != nil {
		h := make(textproto.MIMEHeader)
		filename := f.Photo.Filename
		if filename == "" {
			filename = "photo"
		}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, filename))
		ct := f.Photo.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Photo.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

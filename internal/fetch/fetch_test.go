package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.URL.RawQuery + "|" + string(body) + "|" + r.Header.Get("Authorization")))
	}))
	defer upstream.Close()

	c := NewClient(5 * time.Second)
	resp, err := c.Fetch(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    upstream.URL + "/stories?page=2",
		Header: http.Header{"Authorization": {"Bearer t"}},
		Body:   []byte("payload"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.True(t, resp.OK())
	assert.Equal(t, SourceNetwork, resp.Source)
	assert.Equal(t, "POST", resp.Header.Get("X-Method"))
	assert.Equal(t, "page=2|payload|Bearer t", string(resp.Body))
}

func TestClientFetch_TransportError(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	_, err := NewClient(time.Second).Fetch(context.Background(), &Request{Method: http.MethodGet, URL: url})
	require.Error(t, err)
}

func TestClientFetch_OversizedBodyIsTruncated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("body")))
	}))
	defer upstream.Close()

	c := NewClient(5 * time.Second)
	c.maxBody = 8

	resp, err := c.Fetch(context.Background(), &Request{Method: http.MethodGet, URL: upstream.URL + "/?body=0123456789"})
	require.NoError(t, err)
	assert.True(t, resp.Truncated)
	assert.Equal(t, "01234567", string(resp.Body))
	assert.True(t, resp.Clone().Truncated)

	resp, err = c.Fetch(context.Background(), &Request{Method: http.MethodGet, URL: upstream.URL + "/?body=01234567"})
	require.NoError(t, err)
	assert.False(t, resp.Truncated)
	assert.Equal(t, "01234567", string(resp.Body))
}

func TestRequestKey(t *testing.T) {
	r := &Request{Method: "GET", URL: "https://story-api.dicoding.dev/v1/stories?page=1&size=10"}
	assert.Equal(t, "GET https://story-api.dicoding.dev/v1/stories?page=1&size=10", r.Key())
}

func TestResponseCloneAndWrite(t *testing.T) {
	orig := &Response{
		Status: 200,
		Header: http.Header{"Content-Type": {"application/json"}, "Connection": {"close"}, "Content-Length": {"99"}},
		Body:   []byte(`{"a":1}`),
		Source: SourceCache,
	}
	c := orig.Clone()
	c.Body[0] = 'X'
	c.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, `{"a":1}`, string(orig.Body))
	assert.Equal(t, "application/json", orig.Header.Get("Content-Type"))

	rec := httptest.NewRecorder()
	orig.Write(rec)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, `{"a":1}`, rec.Body.String())
	assert.Equal(t, SourceCache, rec.Header().Get(SourceHeader))
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
}

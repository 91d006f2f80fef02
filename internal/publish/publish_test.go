package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/leaderboard"
)

type upload struct {
	method, path, contentType, auth string
	body                            []byte
}

// fakeBucket records PutObject requests and answers like S3 does.
func fakeBucket(t *testing.T, status int) (*httptest.Server, func() []upload) {
	t.Helper()
	var (
		mu      sync.Mutex
		uploads []upload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		mu.Lock()
		uploads = append(uploads, upload{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			body:        body,
		})
		mu.Unlock()
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func newTestPublisher(t *testing.T, endpoint string) *Publisher {
	t.Helper()
	p, err := New(context.Background(), Config{
		Bucket:          "league",
		Prefix:          "/site/",
		Endpoint:        endpoint,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestKey(t *testing.T) {
	p := newTestPublisher(t, "http://127.0.0.1:1")
	assert.Equal(t, "site/leaderboards/2025-06-14.json", p.Key("2025-06-14"))

	bare, err := New(context.Background(), Config{Bucket: "league", AccessKeyID: "k", SecretAccessKey: "s", PublicBaseURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "leaderboards/2025-06-14.json", bare.Key("2025-06-14"))
	assert.Equal(t, "https://cdn.example.com", bare.baseURL)
}

func TestPublishBoard(t *testing.T) {
	srv, uploads := fakeBucket(t, http.StatusOK)
	p := newTestPublisher(t, srv.URL)

	board := leaderboard.Board{
		Date:      "2025-06-14",
		Event:     "Saturday Doubles",
		Divisions: []leaderboard.Division{},
		Duels:     []leaderboard.DuelResult{},
		BestOn:    []leaderboard.BestOn{},
	}
	url, err := p.PublishBoard(context.Background(), board)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/league/site/leaderboards/2025-06-14.json", url)

	got := uploads()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/league/site/leaderboards/2025-06-14.json", got[0].path)
	assert.Equal(t, "application/json", got[0].contentType)
	assert.True(t, strings.HasPrefix(got[0].auth, "AWS4-HMAC-SHA256"), got[0].auth)

	var decoded leaderboard.Board
	require.NoError(t, json.Unmarshal(got[0].body, &decoded))
	assert.Equal(t, "Saturday Doubles", decoded.Event)
}

func TestPublishBoard_InvalidDate(t *testing.T) {
	srv, uploads := fakeBucket(t, http.StatusOK)
	p := newTestPublisher(t, srv.URL)

	_, err := p.PublishBoard(context.Background(), leaderboard.Board{Date: "June"})
	require.Error(t, err)
	assert.Empty(t, uploads())
}

func TestPublishBoard_Denied(t *testing.T) {
	srv, _ := fakeBucket(t, http.StatusForbidden)
	p := newTestPublisher(t, srv.URL)

	_, err := p.PublishBoard(context.Background(), leaderboard.Board{Date: "2025-06-14"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// SyncServer is a websocket endpoint that plays one card broadcast.
//
// On upgrade it sends the open frame, answers the first client frame with
// Connected, and after the second client frame sends the card frames in
// order. It then reads until the client hangs up.
type SyncServer struct {
	srv  *httptest.Server
	card []string

	mu       sync.Mutex
	paths    []string
	received []string
}

// NewSyncServer starts a server playing card. It is closed on test cleanup.
func NewSyncServer(t testing.TB, card ...string) *SyncServer {
	t.Helper()
	s := &SyncServer{card: card}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the sockjs base URL to configure as the sync endpoint.
func (s *SyncServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/sockjs"
}

// Paths returns the request paths of upgraded connections.
func (s *SyncServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Received returns the client frames read so far.
func (s *SyncServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *SyncServer) handle(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	send := func(frames ...string) bool {
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return false
			}
		}
		return true
	}

	if !send(Open) {
		return
	}
	for n := 1; ; n++ {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, string(data))
		s.mu.Unlock()

		switch n {
		case 1:
			if !send(Connected()) {
				return
			}
		case 2:
			if !send(s.card...) {
				return
			}
		}
	}
}

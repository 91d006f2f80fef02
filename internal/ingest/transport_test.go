package ingest_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/ident"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/testutil"
)

func TestWebsocketDialer_FullSession(t *testing.T) {
	srv := testutil.NewSyncServer(t,
		testutil.Meta("card-1", []string{"e1"}, []string{"u1"}),
		testutil.UserResult(testutil.Player("u1", "Ada Lovelace")),
		testutil.Entry("e1", "u1", 3, 3),
	)
	sub := &recorder{}

	sess := ingest.NewSession(ingest.Config{
		CardID:     "card-1",
		Dialer:     ingest.WebsocketDialer{HandshakeTimeout: time.Second, WriteTimeout: time.Second},
		IDs:        ident.NewFixed("", "cardsub1", "entsub01"),
		Dispatcher: dispatch.New(sub),
		Options:    ingest.Options{SyncURL: srv.URL()},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := sess.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "completed", sum.Phase)
	require.Len(t, sub.submitted(), 1)
	assert.Equal(t, "Ada Lovelace", sub.submitted()[0].PlayerName())

	assert.Equal(t, []string{"/sockjs/100/testsess/websocket"}, srv.Paths())
	received := srv.Received()
	require.GreaterOrEqual(t, len(received), 2)
	assert.Equal(t, frame.Connect(), received[0])
	assert.Equal(t, frame.CardSub("cardsub1", "card-1"), received[1])
}

func TestWebsocketDialer_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ingest.WebsocketDialer{}.Dial(ctx, "ws://127.0.0.1:1/sockjs")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "dial ws://127.0.0.1:1/sockjs"))
}

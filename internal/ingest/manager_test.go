package ingest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/ident"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/testutil"
)

func newManager(conn *testutil.ScriptedConn, sub *recorder, onFinish ingest.FinishFunc) *ingest.Manager {
	return ingest.NewManager(ingest.Config{
		Dialer:     &testutil.ScriptedDialer{Conn: conn},
		IDs:        ident.NewFixed("", "cardsub1", "entsub01"),
		Dispatcher: dispatch.New(sub),
		Options:    ingest.Options{SyncURL: "wss://sync.test/sockjs"},
	}, onFinish)
}

func TestManager_SingleActiveSession(t *testing.T) {
	conn := testutil.NewScriptedConn(8)
	conn.Push(testutil.Open, testutil.Connected())
	m := newManager(conn, &recorder{}, nil)

	sess, err := m.Begin(context.Background(), "https://udisc.com/cardcast/card-1")
	require.NoError(t, err)
	assert.Equal(t, "card-1", sess.CardID())

	second, err := m.Begin(context.Background(), "https://udisc.com/cardcast/card-2")
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ingest.ErrBusy)
	assert.True(t, ingest.IsBusy(err))

	st := m.Status()
	assert.True(t, st.Active)
	require.NotNil(t, st.Current)
	assert.Equal(t, "card-1", st.Current.CardID)

	assert.True(t, m.Cancel())
	m.Wait()

	st = m.Status()
	assert.False(t, st.Active)
	require.NotNil(t, st.Last)
	assert.Contains(t, st.Last.Error, "CANCELLED")
	assert.False(t, m.Cancel())
}

func TestManager_OutlivesRequestContext(t *testing.T) {
	conn := testutil.NewScriptedConn(8)
	sub := &recorder{}

	var mu sync.Mutex
	var finished []ingest.Summary
	m := newManager(conn, sub, func(sum ingest.Summary, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		finished = append(finished, sum)
	})

	reqCtx, cancel := context.WithCancel(context.Background())
	_, err := m.Begin(reqCtx, "card-1")
	require.NoError(t, err)
	cancel()

	time.Sleep(20 * time.Millisecond)
	conn.Push(twoPlayerCard()...)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 1)
	assert.Equal(t, "completed", finished[0].Phase)
	assert.Len(t, sub.submitted(), 2)

	st := m.Status()
	assert.False(t, st.Active)
	assert.Equal(t, "completed", st.Last.Phase)
}

func TestManager_InvalidLink(t *testing.T) {
	m := newManager(testutil.NewScriptedConn(1), &recorder{}, nil)

	_, err := m.Begin(context.Background(), "")
	assert.ErrorIs(t, err, ingest.ErrInvalidCardURL)
	assert.False(t, m.Status().Active)
}

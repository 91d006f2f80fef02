package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/ident"
)

// decoded builds a Received input from an encoded payload object.
func decoded(t *testing.T, v any) Input {
	t.Helper()
	payload, err := frame.EncodePayload(v)
	require.NoError(t, err)
	return Received{Msg: frame.Decode(frame.WrapArray(payload))}
}

func connectAck() Input { return Received{Msg: frame.Decode("o")} }

func connected(t *testing.T) Input {
	return decoded(t, map[string]any{"msg": "connected", "session": "s"})
}

func metaInput(entries, users []string) Input {
	return Received{Msg: frame.Message{
		Kind:   frame.KindScorecardMeta,
		Meta:   &frame.ScorecardMeta{EntryRefs: entries, UserRefs: users},
		Fields: map[string]any{},
	}}
}

func usersInput(users ...frame.User) Input {
	return Received{Msg: frame.Message{Kind: frame.KindUserResult, Users: users, Fields: map[string]any{}}}
}

func entryInput(e frame.ScorecardEntry) Input {
	return Received{Msg: frame.Message{Kind: frame.KindScorecardEntry, Entry: &e, Fields: map[string]any{}}}
}

func pingInput() Input {
	return Received{Msg: frame.Message{Kind: frame.KindPing, Fields: map[string]any{"msg": "ping"}}}
}

// run feeds inputs in order and collects every effect.
func run(m Machine, s State, inputs ...Input) (State, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		s, effects = m.Step(s, in)
		all = append(all, effects...)
	}
	return s, all
}

func sends(effects []Effect) []string {
	var out []string
	for _, e := range effects {
		if s, ok := e.(Send); ok {
			out = append(out, s.Label)
		}
	}
	return out
}

func completes(effects []Effect) []Complete {
	var out []Complete
	for _, e := range effects {
		if c, ok := e.(Complete); ok {
			out = append(out, c)
		}
	}
	return out
}

func newTestMachine() Machine {
	return NewMachine(ident.NewFixed("", "cardsub1", "entsub01"))
}

func TestMachine_Handshake(t *testing.T) {
	m := newTestMachine()
	s := m.Begin("card-1")
	assert.Equal(t, PhaseConnecting, s.Phase)

	s, effects := m.Step(s, connectAck())
	require.Equal(t, []Effect{Send{Label: "connect", Text: frame.Connect()}}, effects)
	assert.Equal(t, PhaseAwaitingCardSub, s.Phase)

	s, effects = m.Step(s, connected(t))
	require.Equal(t, []Effect{Send{Label: "card_sub", Text: frame.CardSub("cardsub1", "card-1")}}, effects)
	assert.Equal(t, PhaseAwaitingUserAndEntrySub, s.Phase)

	s, effects = m.Step(s, metaInput([]string{"e1", "e2"}, []string{"u1", "u2"}))
	require.Equal(t, []Effect{Send{Label: "user_sub", Text: frame.UserSub([]string{"u1", "u2"})}}, effects)
	assert.Equal(t, []string{"e1", "e2"}, s.PendingEntrySub, "entry subscription waits for users")
	assert.False(t, s.EntrySubSent)

	s, effects = m.Step(s, usersInput(ada, alan))
	require.Equal(t, []Effect{Send{Label: "entry_sub", Text: frame.EntrySub("entsub01", []string{"e1", "e2"})}}, effects)
	assert.Nil(t, s.PendingEntrySub)
	assert.Equal(t, PhaseStreaming, s.Phase)
	assert.Equal(t, []string{"cardsub1", userLookupID, "entsub01"}, s.Issued, "answered ids stay issued")
}

func TestMachine_TwoEntryScenario(t *testing.T) {
	m := newTestMachine()
	s := m.Begin("card-1")

	s, _ = run(m, s, connectAck(), connected(t))
	s, effects := run(m, s,
		metaInput([]string{"e1", "e2"}, []string{"u1", "u2"}),
		usersInput(ada, alan),
		entryInput(entry("e1", "u1", 3, 3)),
	)
	assert.Empty(t, completes(effects))
	assert.False(t, s.Join.Complete())

	s, effects = m.Step(s, entryInput(entry("e2", "u2", 4, 4)))

	done := completes(effects)
	require.Len(t, done, 1)
	require.Len(t, done[0].Records, 2)
	assert.Equal(t, "Ada Lovelace", done[0].Records[0].PlayerName())
	assert.Equal(t, "Alan Turing", done[0].Records[1].PlayerName())
	assert.Equal(t, PhaseCompleted, s.Phase)
	assert.True(t, s.Join.Complete())
}

func TestMachine_CompletionFiresOnce(t *testing.T) {
	m := newTestMachine()
	s := m.Begin("card-1")

	s, effects := run(m, s,
		connectAck(), connected(t),
		metaInput([]string{"e1", "e2", "e3"}, []string{"u1"}),
		usersInput(ada),
		entryInput(entry("e1", "u1")),
		entryInput(entry("e2", "u1")),
		entryInput(entry("e3", "u1")),
		entryInput(entry("e3", "u1")),
		entryInput(entry("e1", "u1")),
		GiveUp{},
	)

	assert.Len(t, completes(effects), 1)
	assert.Equal(t, 3, s.Join.Joined())
}

func TestMachine_PingAnsweredInAnyLivePhase(t *testing.T) {
	m := newTestMachine()

	s := m.Begin("card-1")
	_, effects := m.Step(s, pingInput())
	assert.Contains(t, sends(effects), "pong")

	s.Phase = PhaseCompleted
	_, effects = m.Step(s, pingInput())
	assert.Equal(t, []string{"pong"}, sends(effects))

	s.Phase = PhaseClosed
	_, effects = m.Step(s, pingInput())
	assert.Empty(t, effects)
}

func TestMachine_FirstPingAlsoTriggersCardSub(t *testing.T) {
	m := newTestMachine()
	s, _ := m.Step(m.Begin("card-1"), connectAck())

	s, effects := m.Step(s, pingInput())
	assert.Equal(t, []string{"pong", "card_sub"}, sends(effects))
	assert.True(t, s.CardSubSent)
}

func TestMachine_UndecodedFrameDoesNotConfirmConnect(t *testing.T) {
	m := newTestMachine()
	s, _ := m.Step(m.Begin("card-1"), connectAck())

	s, effects := m.Step(s, Received{Msg: frame.Decode("a[not valid json]")})
	assert.Empty(t, effects)
	assert.False(t, s.CardSubSent)
	assert.Equal(t, PhaseAwaitingCardSub, s.Phase, "malformed frames leave the session open")

	s, effects = m.Step(s, Received{Msg: frame.Decode("h")})
	assert.Empty(t, effects)
	assert.False(t, s.CardSubSent)
}

func TestMachine_CardDataIgnoredBeforeCardSub(t *testing.T) {
	m := newTestMachine()
	s := m.Begin("card-1")

	s, effects := m.Step(s, metaInput([]string{"e1"}, []string{"u1"}))
	assert.Empty(t, effects)
	assert.False(t, s.Join.MetaSeen())
}

func TestMachine_UsersBeforeMetaSendsEntrySubImmediately(t *testing.T) {
	m := newTestMachine()
	s, _ := run(m, m.Begin("card-1"), connectAck(), connected(t), usersInput(ada))

	s, effects := m.Step(s, metaInput([]string{"e1"}, []string{"u1"}))
	assert.Equal(t, []string{"user_sub", "entry_sub"}, sends(effects))
	assert.Equal(t, PhaseStreaming, s.Phase)
}

func TestMachine_SecondMetaDoesNotResubscribe(t *testing.T) {
	m := newTestMachine()
	s, _ := run(m, m.Begin("card-1"), connectAck(), connected(t),
		metaInput([]string{"e1"}, []string{"u1"}), usersInput(ada))

	_, effects := m.Step(s, metaInput([]string{"e1", "e9"}, []string{"u1", "u9"}))
	assert.Empty(t, sends(effects))
}

func TestMachine_EntryBeforeUsersResolvesLater(t *testing.T) {
	m := newTestMachine()
	s, _ := run(m, m.Begin("card-1"), connectAck(), connected(t),
		metaInput([]string{"e1"}, []string{"u1"}))

	s, effects := m.Step(s, entryInput(entry("e1", "u1", 3)))
	assert.Empty(t, effects)
	assert.Equal(t, 1, s.Join.Pending())

	_, effects = m.Step(s, usersInput(ada))
	done := completes(effects)
	require.Len(t, done, 1)
	assert.Equal(t, "Ada Lovelace", done[0].Records[0].PlayerName())
}

func TestMachine_GiveUpCompletesWithNullUsers(t *testing.T) {
	m := newTestMachine()
	s, _ := run(m, m.Begin("card-1"), connectAck(), connected(t),
		metaInput([]string{"e1"}, []string{"u1"}),
		entryInput(entry("e1", "u1", 3)))

	_, effects := m.Step(s, GiveUp{})
	done := completes(effects)
	require.Len(t, done, 1)
	assert.Nil(t, done[0].Records[0].User)
}

func TestMachine_TransportEventsAreAbsorbing(t *testing.T) {
	m := newTestMachine()
	s, _ := m.Step(m.Begin("card-1"), connectAck())

	boom := errors.New("reset by peer")
	failed, _ := m.Step(s, Failed{Err: boom})
	assert.Equal(t, PhaseErrored, failed.Phase)
	assert.Equal(t, boom, failed.Err)

	after, effects := m.Step(failed, connected(t))
	assert.Empty(t, effects)
	assert.Equal(t, failed, after)

	closed, _ := m.Step(s, Closed{})
	assert.Equal(t, PhaseClosed, closed.Phase)
	assert.True(t, closed.Phase.Terminal())
}

func TestMachine_StepDoesNotMutateInput(t *testing.T) {
	m := newTestMachine()
	s, _ := run(m, m.Begin("card-1"), connectAck(), connected(t),
		metaInput([]string{"e1", "e2"}, []string{"u1"}))
	before := s
	pending := append([]string(nil), s.PendingEntrySub...)

	_, _ = run(m, s, usersInput(ada), entryInput(entry("e1", "u1")))

	assert.Equal(t, pending, s.PendingEntrySub)
	assert.Equal(t, before.Issued, s.Issued)
	assert.Equal(t, 0, s.Join.Joined())
	assert.Equal(t, PhaseAwaitingUserAndEntrySub, s.Phase)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "awaiting_user_and_entry_sub", PhaseAwaitingUserAndEntrySub.String())
	assert.Equal(t, "phase(99)", Phase(99).String())
}

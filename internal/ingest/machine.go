package ingest

import (
	"fmt"
	"slices"

	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/ident"
	"github.com/discroundup/roundup/internal/scorecard"
)

// Phase is the lifecycle position of a connection.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseConnecting: transport dialled, waiting for the open frame.
	PhaseConnecting
	// PhaseAwaitingCardSub: connect sent, card subscription goes out on
	// the first decoded payload.
	PhaseAwaitingCardSub
	// PhaseAwaitingUserAndEntrySub: card subscribed, waiting for its meta
	// and then for users before entries are subscribed.
	PhaseAwaitingUserAndEntrySub
	// PhaseStreaming: both user and entry subscriptions issued.
	PhaseStreaming
	PhaseCompleted
	PhaseClosed
	PhaseErrored
)

var phaseNames = map[Phase]string{
	PhaseIdle:                    "idle",
	PhaseConnecting:              "connecting",
	PhaseAwaitingCardSub:         "awaiting_card_sub",
	PhaseAwaitingUserAndEntrySub: "awaiting_user_and_entry_sub",
	PhaseStreaming:               "streaming",
	PhaseCompleted:               "completed",
	PhaseClosed:                  "closed",
	PhaseErrored:                 "errored",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further input can change the state.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseErrored
}

// State is everything one connection knows. Values are never shared
// between connections; Step returns a new State and leaves its argument
// untouched.
type State struct {
	Phase  Phase
	CardID string

	ConnectSent  bool
	CardSubSent  bool
	UserSubSent  bool
	EntrySubSent bool

	// PendingEntrySub holds the entry references of a queued entry
	// subscription. Non-nil while the subscription waits for users.
	PendingEntrySub []string

	// Issued lists every correlation id sent on this connection, in send
	// order. Answers do not remove ids.
	Issued []string

	Join Correlator

	// Err is set when Phase is PhaseErrored.
	Err error
}

// Input is an event fed to Step.
type Input interface{ isInput() }

// Received delivers one decoded payload.
type Received struct{ Msg frame.Message }

// GiveUp stops waiting for unresolved owners.
type GiveUp struct{}

// Closed reports a clean transport close.
type Closed struct{}

// Failed reports a transport error.
type Failed struct{ Err error }

func (Received) isInput() {}
func (GiveUp) isInput()   {}
func (Closed) isInput()   {}
func (Failed) isInput()   {}

// Effect is an action Step asks the session to perform, in order.
type Effect interface{ isEffect() }

// Send writes Text to the transport. Label names the frame for logs.
type Send struct {
	Label string
	Text  string
}

// Joined announces records that were joined by this step.
type Joined struct{ Records []scorecard.Record }

// Complete fires once, when every announced entry has been joined.
type Complete struct{ Records []scorecard.Record }

func (Send) isEffect()     {}
func (Joined) isEffect()   {}
func (Complete) isEffect() {}

// userLookupID is the id the user lookup method is always issued under.
const userLookupID = "2"

// Machine is the subscription handshake. It holds no per-connection
// state, only the id source for correlation ids.
type Machine struct {
	ids ident.Generator
}

// NewMachine creates a machine drawing correlation ids from ids.
func NewMachine(ids ident.Generator) Machine {
	return Machine{ids: ids}
}

// Begin returns the initial state for a connection to cardID.
func (m Machine) Begin(cardID string) State {
	return State{Phase: PhaseConnecting, CardID: cardID}
}

// Step applies one input.
func (m Machine) Step(s State, in Input) (State, []Effect) {
	if s.Phase.Terminal() || s.Phase == PhaseIdle {
		return s, nil
	}

	switch in := in.(type) {
	case Received:
		return m.receive(s, in.Msg)
	case GiveUp:
		if s.Phase == PhaseCompleted {
			return s, nil
		}
		var recs []scorecard.Record
		s.Join, recs = s.Join.GiveUp()
		return settle(s, recs, nil)
	case Closed:
		s.Phase = PhaseClosed
		return s, nil
	case Failed:
		s.Phase = PhaseErrored
		s.Err = in.Err
		return s, nil
	}
	return s, nil
}

func (m Machine) receive(s State, msg frame.Message) (State, []Effect) {
	var effects []Effect

	if msg.Kind == frame.KindPing {
		effects = append(effects, Send{Label: "pong", Text: frame.Pong()})
	}
	if s.Phase == PhaseCompleted {
		return s, effects
	}

	if msg.Kind == frame.KindConnectAck {
		if !s.ConnectSent {
			s.ConnectSent = true
			s.Phase = PhaseAwaitingCardSub
			effects = append(effects, Send{Label: "connect", Text: frame.Connect()})
		}
		return s, effects
	}

	// The first payload that parses after connect confirms the handshake.
	if s.ConnectSent && !s.CardSubSent && msg.Decoded() {
		id := m.ids.ShortID()
		s.CardSubSent = true
		s.Phase = PhaseAwaitingUserAndEntrySub
		s.Issued = append(slices.Clip(s.Issued), id)
		effects = append(effects, Send{Label: "card_sub", Text: frame.CardSub(id, s.CardID)})
	}

	// Card data is only meaningful once the card has been subscribed.
	if !s.CardSubSent {
		return s, effects
	}

	var recs []scorecard.Record
	switch msg.Kind {
	case frame.KindScorecardMeta:
		s.Join = s.Join.WithMeta(*msg.Meta)
		if !s.EntrySubSent && s.PendingEntrySub == nil {
			s.PendingEntrySub = append([]string{}, msg.Meta.EntryRefs...)
		}
		if !s.UserSubSent {
			s.UserSubSent = true
			s.Issued = append(slices.Clip(s.Issued), userLookupID)
			effects = append(effects, Send{Label: "user_sub", Text: frame.UserSub(msg.Meta.UserRefs)})
		}

	case frame.KindUserResult:
		s.Join, recs = s.Join.WithUsers(msg.Users)

	case frame.KindScorecardEntry:
		s.Join, recs = s.Join.WithEntry(*msg.Entry)
	}

	// The queued entry subscription goes out once users are in.
	if s.PendingEntrySub != nil && !s.EntrySubSent && s.Join.UsersReceived() {
		id := m.ids.ShortID()
		s.EntrySubSent = true
		s.Issued = append(slices.Clip(s.Issued), id)
		effects = append(effects, Send{Label: "entry_sub", Text: frame.EntrySub(id, s.PendingEntrySub)})
		s.PendingEntrySub = nil
	}

	if s.UserSubSent && s.EntrySubSent && s.Phase < PhaseStreaming {
		s.Phase = PhaseStreaming
	}

	return settle(s, recs, effects)
}

// settle appends the join and completion effects for newly joined records.
// Completion is edge-triggered through Correlator.MarkComplete.
func settle(s State, recs []scorecard.Record, effects []Effect) (State, []Effect) {
	if len(recs) > 0 {
		effects = append(effects, Joined{Records: recs})
	}
	if !s.Join.Completed() && s.Join.Complete() {
		s.Join = s.Join.MarkComplete()
		s.Phase = PhaseCompleted
		effects = append(effects, Complete{Records: s.Join.Records()})
	}
	return s, effects
}

package frame

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openFrame      = "o"
	heartbeatFrame = "h"
	arrayPrefix    = "a["
)

// Collections and DDP message names we classify.
const (
	collectionScorecard      = "Scorecard"
	collectionScorecardEntry = "ScorecardEntry"
	msgPing                  = "ping"
	msgResult                = "result"
)

// Decode decodes one raw transport frame into a single Message.
// Frames carrying several payloads yield the first; use DecodeFrame to
// see all of them.
func Decode(raw string) Message {
	return DecodeFrame(raw)[0]
}

// DecodeFrame decodes one raw transport frame. The result always has at
// least one element.
func DecodeFrame(raw string) []Message {
	switch {
	case raw == openFrame:
		return []Message{{Kind: KindConnectAck}}

	case raw == heartbeatFrame:
		return []Message{unrecognized(fmt.Errorf("%w: heartbeat", ErrUnknownFrame))}

	case strings.HasPrefix(raw, arrayPrefix):
		var elems []string
		if err := json.Unmarshal([]byte(raw[len(arrayPrefix)-1:]), &elems); err != nil {
			return []Message{unrecognized(fmt.Errorf("%w: unwrap array: %v", ErrMalformed, err))}
		}
		if len(elems) == 0 {
			return []Message{unrecognized(fmt.Errorf("%w: empty array", ErrMalformed))}
		}
		msgs := make([]Message, 0, len(elems))
		for _, elem := range elems {
			msgs = append(msgs, decodePayload(elem))
		}
		return msgs
	}

	return []Message{unrecognized(fmt.Errorf("%w: %.32q", ErrUnknownFrame, raw))}
}

type envelope struct {
	Msg        string          `json:"msg"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Fields     json.RawMessage `json:"fields"`
	Result     json.RawMessage `json:"result"`
}

// decodePayload parses the inner JSON document and classifies it.
func decodePayload(text string) Message {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return unrecognized(fmt.Errorf("%w: payload: %v", ErrMalformed, err))
	}
	if fields == nil {
		return unrecognized(fmt.Errorf("%w: payload is null", ErrMalformed))
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		m := unrecognized(fmt.Errorf("%w: envelope: %v", ErrMalformed, err))
		m.Fields = fields
		return m
	}

	m := classify(env)
	m.Fields = fields
	return m
}

func classify(env envelope) Message {
	switch env.Msg {
	case msgPing:
		return Message{Kind: KindPing}
	case msgResult:
		return classifyResult(env)
	}

	switch env.Collection {
	case "":
		return unrecognized(fmt.Errorf("%w: msg=%q", ErrUnknownDiscriminant, env.Msg))
	case collectionScorecard:
		return classifyScorecard(env)
	case collectionScorecardEntry:
		return classifyEntry(env)
	}
	return unrecognized(fmt.Errorf("%w: collection=%q", ErrUnknownDiscriminant, env.Collection))
}

func classifyResult(env envelope) Message {
	var result struct {
		Users *[]User `json:"users"`
	}
	if len(env.Result) == 0 {
		return unrecognized(fmt.Errorf("%w: result without body", ErrIncomplete))
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return unrecognized(fmt.Errorf("%w: result: %v", ErrMalformed, err))
	}
	if result.Users == nil {
		return unrecognized(fmt.Errorf("%w: result without users", ErrIncomplete))
	}
	return Message{Kind: KindUserResult, Users: *result.Users}
}

func classifyScorecard(env envelope) Message {
	var f struct {
		Entries *[]objectRef `json:"entries"`
		Users   []objectRef  `json:"users"`
	}
	if len(env.Fields) == 0 {
		return unrecognized(fmt.Errorf("%w: scorecard without fields", ErrIncomplete))
	}
	if err := json.Unmarshal(env.Fields, &f); err != nil {
		return unrecognized(fmt.Errorf("%w: scorecard fields: %v", ErrMalformed, err))
	}
	if f.Entries == nil {
		return unrecognized(fmt.Errorf("%w: scorecard without entries", ErrIncomplete))
	}
	return Message{
		Kind: KindScorecardMeta,
		Meta: &ScorecardMeta{
			EntryRefs: refIDs(*f.Entries),
			UserRefs:  refIDs(f.Users),
		},
	}
}

func classifyEntry(env envelope) Message {
	var f struct {
		StartDate   ejsonTime   `json:"startDate"`
		EndDate     ejsonTime   `json:"endDate"`
		LayoutID    string      `json:"layoutId"`
		RoundRating flexFloat   `json:"roundRating"`
		HoleScores  []HoleScore `json:"holeScores"`
		Users       []objectRef `json:"users"`
	}
	if env.ID == "" {
		return unrecognized(fmt.Errorf("%w: entry without id", ErrIncomplete))
	}
	if len(env.Fields) == 0 {
		return unrecognized(fmt.Errorf("%w: entry %s without fields", ErrIncomplete, env.ID))
	}
	if err := json.Unmarshal(env.Fields, &f); err != nil {
		return unrecognized(fmt.Errorf("%w: entry %s fields: %v", ErrMalformed, env.ID, err))
	}
	if !f.StartDate.set {
		return unrecognized(fmt.Errorf("%w: entry %s without startDate", ErrIncomplete, env.ID))
	}

	entry := &ScorecardEntry{
		ID:          env.ID,
		StartDate:   f.StartDate.Time,
		EndDate:     f.EndDate.Time,
		LayoutID:    f.LayoutID,
		RoundRating: f.RoundRating.val,
		HoleScores:  f.HoleScores,
	}
	if len(f.Users) > 0 {
		entry.OwnerRef = f.Users[0].ObjectID
	}
	if entry.HoleScores == nil {
		entry.HoleScores = []HoleScore{}
	}
	return Message{Kind: KindScorecardEntry, Entry: entry}
}

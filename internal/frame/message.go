package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags a decoded Message.
type Kind int

const (
	// KindUnrecognized is any frame that could not be parsed or classified.
	KindUnrecognized Kind = iota
	// KindConnectAck is the SockJS "o" frame.
	KindConnectAck
	// KindPing is a DDP keepalive that must be answered with Pong.
	KindPing
	// KindUserResult carries user records from the user lookup method.
	KindUserResult
	// KindScorecardMeta carries the entry and user references of a card.
	KindScorecardMeta
	// KindScorecardEntry carries one player's entry on the card.
	KindScorecardEntry
)

var kindNames = map[Kind]string{
	KindUnrecognized:   "unrecognized",
	KindConnectAck:     "connect_ack",
	KindPing:           "ping",
	KindUserResult:     "user_result",
	KindScorecardMeta:  "scorecard_meta",
	KindScorecardEntry: "scorecard_entry",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Decode errors recorded on unrecognized messages.
var (
	ErrMalformed           = errors.New("malformed frame")
	ErrUnknownFrame        = errors.New("unknown frame type")
	ErrUnknownDiscriminant = errors.New("unknown message discriminant")
	ErrIncomplete          = errors.New("incomplete message")
)

// User is an identity record returned by the user lookup.
// Keyed by ID; never mutated after it has been accepted.
type User struct {
	ID       string `json:"_id"`
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// UnmarshalJSON accepts both the snake_case and camelCase spelling of the
// full name, which the service has used interchangeably.
func (u *User) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string `json:"_id"`
		FullName  string `json:"full_name"`
		FullName2 string `json:"fullName"`
		Name      string `json:"name"`
		Username  string `json:"username"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	u.ID = raw.ID
	u.FullName = raw.FullName
	if u.FullName == "" {
		u.FullName = raw.FullName2
	}
	u.Name = raw.Name
	u.Username = raw.Username
	return nil
}

// DisplayName returns the best available human-readable name.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return "Unknown Player"
	case u.FullName != "":
		return u.FullName
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	}
	return "Unknown Player"
}

// HoleScore is the result of a single hole.
type HoleScore struct {
	Strokes int `json:"strokes"`
	Penalty int `json:"penalty,omitempty"`
}

// Total is strokes plus penalty strokes.
func (h HoleScore) Total() int {
	return h.Strokes + h.Penalty
}

// ScorecardMeta lists the entry and user references announced for a card.
type ScorecardMeta struct {
	EntryRefs []string
	UserRefs  []string
}

// ScorecardEntry is one player's scorecard within a card.
type ScorecardEntry struct {
	ID          string
	OwnerRef    string
	StartDate   time.Time
	EndDate     time.Time
	LayoutID    string
	RoundRating *float64
	HoleScores  []HoleScore
}

// Message is the tagged result of decoding one payload.
// Exactly one of Users, Meta, Entry is populated, matching Kind.
type Message struct {
	Kind  Kind
	Users []User
	Meta  *ScorecardMeta
	Entry *ScorecardEntry

	// Fields is the generic decoded payload object. Non-nil whenever the
	// payload itself parsed, even if it was not classified.
	Fields map[string]any

	// Err explains why a message is KindUnrecognized.
	Err error
}

// Decoded reports whether the message came from a payload that parsed
// cleanly. The handshake uses this as confirmation that the connect
// exchange succeeded.
func (m Message) Decoded() bool {
	return m.Fields != nil
}

func unrecognized(err error) Message {
	return Message{Kind: KindUnrecognized, Err: err}
}

// objectRef is a pointer to another document, as embedded in card fields.
type objectRef struct {
	Type      string `json:"_type"`
	ObjectID  string `json:"objectId"`
	ClassName string `json:"className"`
}

func refIDs(refs []objectRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ObjectID)
	}
	return ids
}

// ejsonTime decodes an EJSON date ({"$date": millis}) or an RFC 3339 string.
type ejsonTime struct {
	time.Time
	set bool
}

func (t *ejsonTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, "{") {
		var wrapped struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		if len(wrapped.Date) == 0 {
			return fmt.Errorf("date object without $date")
		}
		return t.UnmarshalJSON(wrapped.Date)
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return err
		}
		t.Time, t.set = parsed.UTC(), true
		return nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid date %s: %w", s, err)
	}
	t.Time, t.set = time.UnixMilli(int64(ms)).UTC(), true
	return nil
}

// flexFloat decodes a JSON number or a numeric string.
type flexFloat struct {
	val *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", s, err)
	}
	f.val = &v
	return nil
}

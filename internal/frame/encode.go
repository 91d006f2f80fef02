package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// userLookupID is the fixed method id the service's own client uses for
// the user lookup call.
const userLookupID = "2"

type connectMsg struct {
	Msg     string   `json:"msg"`
	Version string   `json:"version"`
	Support []string `json:"support"`
}

type pongMsg struct {
	Msg string `json:"msg"`
}

type subMsg struct {
	Msg    string `json:"msg"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Params []any  `json:"params"`
}

type methodMsg struct {
	Msg    string `json:"msg"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type userLookupParams struct {
	UserIDs   []string `json:"userIds"`
	PlayerIDs []string `json:"playerIds"`
}

// Connect is the DDP connect handshake frame.
func Connect() string {
	return mustPayload(connectMsg{
		Msg:     "connect",
		Version: "1",
		Support: []string{"1", "pre2", "pre1"},
	})
}

// Pong answers a ping.
func Pong() string {
	return mustPayload(pongMsg{Msg: "pong"})
}

// CardSub subscribes to the scorecard with the given card id.
func CardSub(id, cardID string) string {
	return mustPayload(subMsg{
		Msg:    "sub",
		ID:     id,
		Name:   "scorecardForId",
		Params: []any{cardID},
	})
}

// EntrySub subscribes to the listed scorecard entries.
func EntrySub(id string, entryRefs []string) string {
	return mustPayload(subMsg{
		Msg:    "sub",
		ID:     id,
		Name:   "cardcastEntries",
		Params: []any{nonNil(entryRefs)},
	})
}

// UserSub calls the user lookup method for the listed user references.
func UserSub(userRefs []string) string {
	return mustPayload(methodMsg{
		Msg:    "method",
		ID:     userLookupID,
		Method: "users.getCardCastUsersAndPlayers",
		Params: []any{userLookupParams{
			UserIDs:   nonNil(userRefs),
			PlayerIDs: []string{},
		}},
	})
}

// EncodePayload double-encodes v: the JSON document is itself written as a
// JSON string, which is the form the service expects on the wire.
func EncodePayload(v any) (string, error) {
	inner, err := marshalNoEscape(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	outer, err := marshalNoEscape(string(inner))
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(outer), nil
}

// WrapArray builds an inbound-style "a[...]" frame from encoded payloads.
func WrapArray(payloads ...string) string {
	return arrayPrefix + strings.Join(payloads, ",") + "]"
}

func mustPayload(v any) string {
	s, err := EncodePayload(v)
	if err != nil {
		panic(err)
	}
	return s
}

// marshalNoEscape is json.Marshal without HTML escaping and without the
// encoder's trailing newline.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package testutil

import (
	"time"

	"github.com/discroundup/roundup/internal/frame"
)

// Open is the SockJS open frame.
const Open = "o"

// DefaultStart is the start date used by Entry.
var DefaultStart = time.Date(2025, 6, 14, 17, 0, 0, 0, time.UTC)

// Wrap double-encodes v and wraps it as an inbound array frame.
// Panics if v cannot be encoded.
func Wrap(v any) string {
	payload, err := frame.EncodePayload(v)
	if err != nil {
		panic(err)
	}
	return frame.WrapArray(payload)
}

// Connected is the server's answer to the connect handshake.
func Connected() string {
	return Wrap(map[string]any{"msg": "connected", "session": "srv-session"})
}

// Ping is a server keepalive.
func Ping() string {
	return Wrap(map[string]any{"msg": "ping"})
}

// Meta announces the entries and users of a card.
func Meta(cardID string, entryRefs, userRefs []string) string {
	return Wrap(map[string]any{
		"msg":        "added",
		"collection": "Scorecard",
		"id":         cardID,
		"fields": map[string]any{
			"entries": pointers(entryRefs, "ScorecardEntry"),
			"users":   pointers(userRefs, "_User"),
		},
	})
}

// UserResult answers the user lookup with the given users.
func UserResult(users ...frame.User) string {
	list := make([]any, 0, len(users))
	for _, u := range users {
		list = append(list, map[string]any{
			"_id":       u.ID,
			"full_name": u.FullName,
			"name":      u.Name,
			"username":  u.Username,
		})
	}
	return Wrap(map[string]any{
		"msg":    "result",
		"id":     "2",
		"result": map[string]any{"users": list},
	})
}

// Entry is one player's scorecard entry owned by owner, one hole per
// strokes value.
func Entry(id, owner string, strokes ...int) string {
	holes := make([]any, 0, len(strokes))
	for _, s := range strokes {
		holes = append(holes, map[string]any{"strokes": s})
	}
	fields := map[string]any{
		"startDate":   map[string]any{"$date": DefaultStart.UnixMilli()},
		"endDate":     map[string]any{"$date": DefaultStart.Add(2 * time.Hour).UnixMilli()},
		"layoutId":    "layout-1",
		"roundRating": 900,
		"holeScores":  holes,
	}
	if owner != "" {
		fields["users"] = []any{map[string]any{"objectId": owner, "className": "_User"}}
	}
	return Wrap(map[string]any{
		"msg":        "added",
		"collection": "ScorecardEntry",
		"id":         id,
		"fields":     fields,
	})
}

// Player builds a user with a full name.
func Player(id, fullName string) frame.User {
	return frame.User{ID: id, FullName: fullName}
}

func pointers(ids []string, class string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"_type": "pointer", "objectId": id, "className": class})
	}
	return out
}

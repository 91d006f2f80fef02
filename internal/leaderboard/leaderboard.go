// Package leaderboard computes round results from stored score rows.
//
// Totals count strokes plus penalties. The final score subtracts the
// player's handicap. The best-on score sums the strokes on the event's
// best-on holes and subtracts the best-on par.
package leaderboard

import (
	"cmp"
	"slices"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/scorecard"
)

// maxBestOnWinners caps how many tied players share a best-on prize.
const maxBestOnWinners = 3

// Entry is one player's result.
type Entry struct {
	CardID       string `json:"card_id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Division     string `json:"division"`
	Handicap     int    `json:"handicap"`
	Tag          int    `json:"tag,omitempty"`
	TotalStrokes int    `json:"total_strokes"`
	FinalScore   int    `json:"final_score"`
	BestOnScore  int    `json:"best_on_score"`
}

// Division groups entries sorted by final score.
type Division struct {
	Key     string  `json:"key"`
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// DuelResult is the outcome of one duel. Winners holds both players on a
// tie and is empty when either player did not post a score.
type DuelResult struct {
	Name    string   `json:"name"`
	Players []string `json:"players"`
	Winners []Entry  `json:"winners"`
}

// BestOn lists the best-on winners of one division.
type BestOn struct {
	Division string  `json:"division"`
	Winners  []Entry `json:"winners"`
}

// Board is the full result of a round.
type Board struct {
	Date      string       `json:"date"`
	Event     string       `json:"event,omitempty"`
	Top       *Entry       `json:"top,omitempty"`
	Divisions []Division   `json:"divisions"`
	Duels     []DuelResult `json:"duels"`
	BestOn    []BestOn     `json:"best_on"`
}

// Score computes the entry for one row.
func Score(ev event.Event, row scorecard.Row) Entry {
	e := Entry{
		CardID:   row.CardID,
		Username: row.Username,
		Name:     displayName(row),
		Division: DivisionKey(row.Division),
		Handicap: row.Handicap,
		Tag:      row.Tag,
	}

	bestOn := 0
	for i, h := range row.HoleScores {
		e.TotalStrokes += h.Total()
		if ev.IsBestOnHole(i + 1) {
			bestOn += h.Total()
		}
	}
	e.FinalScore = e.TotalStrokes - e.Handicap
	e.BestOnScore = bestOn - ev.BestOnPar
	return e
}

// Build scores every row and assembles the board for ev.
func Build(ev event.Event, rows []scorecard.Row) Board {
	board := Board{
		Date:      ev.Date,
		Event:     ev.Name,
		Divisions: []Division{},
		Duels:     []DuelResult{},
		BestOn:    []BestOn{},
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Score(ev, row))
	}

	for i := range entries {
		if board.Top == nil || entries[i].FinalScore < board.Top.FinalScore {
			top := entries[i]
			board.Top = &top
		}
	}

	board.Divisions = divisions(ev, entries)
	board.Duels = duels(ev, entries)
	if len(ev.BestOnHoles) > 0 {
		board.BestOn = bestOn(entries)
	}
	return board
}

// DivisionKey normalizes a division name; empty means the default division.
func DivisionKey(name string) string {
	key := slug.Make(name)
	if key == "" {
		return scorecard.DefaultDivision
	}
	return key
}

var titler = cases.Title(language.English)

// Title renders a division key for display.
func Title(key string) string {
	return titler.String(slug.Substitute(key, map[string]string{"-": " "}))
}

func displayName(row scorecard.Row) string {
	if row.FullName != "" {
		return row.FullName
	}
	if row.User != nil {
		return row.PlayerName()
	}
	if row.Username != "" {
		return row.Username
	}
	return row.PlayerName()
}

// divisions groups entries, ordering divisions as the event lists them
// and any others alphabetically after.
func divisions(ev event.Event, entries []Entry) []Division {
	groups := map[string][]Entry{}
	for _, e := range entries {
		groups[e.Division] = append(groups[e.Division], e)
	}

	rank := map[string]int{}
	for i, d := range ev.Divisions {
		rank[DivisionKey(d)] = i
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ra, oka := rank[a]
		rb, okb := rank[b]
		switch {
		case oka && okb:
			return cmp.Compare(ra, rb)
		case oka:
			return -1
		case okb:
			return 1
		}
		return cmp.Compare(a, b)
	})

	out := make([]Division, 0, len(keys))
	for _, k := range keys {
		list := groups[k]
		slices.SortStableFunc(list, func(a, b Entry) int {
			return cmp.Or(
				cmp.Compare(a.FinalScore, b.FinalScore),
				cmp.Compare(a.TotalStrokes, b.TotalStrokes),
			)
		})
		out = append(out, Division{Key: k, Title: Title(k), Entries: list})
	}
	return out
}

// duels resolves each duel by lower total strokes, ordered by the winner's
// division.
func duels(ev event.Event, entries []Entry) []DuelResult {
	byUser := map[string]Entry{}
	for _, e := range entries {
		if e.Username == "" {
			continue
		}
		if _, seen := byUser[e.Username]; !seen {
			byUser[e.Username] = e
		}
	}

	out := make([]DuelResult, 0, len(ev.Duels))
	for _, d := range ev.Duels {
		res := DuelResult{Name: d.Name, Players: d.Players, Winners: []Entry{}}
		if len(d.Players) == 2 {
			p1, ok1 := byUser[d.Players[0]]
			p2, ok2 := byUser[d.Players[1]]
			if ok1 && ok2 {
				switch {
				case p1.TotalStrokes < p2.TotalStrokes:
					res.Winners = []Entry{p1}
				case p2.TotalStrokes < p1.TotalStrokes:
					res.Winners = []Entry{p2}
				default:
					res.Winners = []Entry{p1, p2}
				}
			}
		}
		out = append(out, res)
	}

	slices.SortStableFunc(out, func(a, b DuelResult) int {
		return cmp.Compare(winnerDivision(a), winnerDivision(b))
	})
	return out
}

func winnerDivision(d DuelResult) string {
	if len(d.Winners) == 0 {
		return "~"
	}
	return d.Winners[0].Division
}

// bestOn picks the lowest best-on score per division, keeping up to
// maxBestOnWinners tied players in input order.
func bestOn(entries []Entry) []BestOn {
	winners := map[string][]Entry{}
	for _, e := range entries {
		cur := winners[e.Division]
		switch {
		case len(cur) == 0 || e.BestOnScore < cur[0].BestOnScore:
			winners[e.Division] = []Entry{e}
		case e.BestOnScore == cur[0].BestOnScore && len(cur) < maxBestOnWinners:
			winners[e.Division] = append(cur, e)
		}
	}

	keys := make([]string, 0, len(winners))
	for k := range winners {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]BestOn, 0, len(keys))
	for _, k := range keys {
		out = append(out, BestOn{Division: k, Winners: winners[k]})
	}
	return out
}

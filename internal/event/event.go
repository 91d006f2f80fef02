// Package event loads round definitions written in CUE.
//
// An event file sets a single top-level "event" struct, which is unified
// with the embedded #Event schema before decoding:
//
//	event: {
//		date:          "2025-06-14"
//		name:          "Saturday Doubles"
//		best_on_holes: [3, 7, 12]
//		duels: [{name: "Grudge match", players: ["ada", "alan"]}]
//	}
package event

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource []byte

// Duel is a head-to-head pairing by username.
type Duel struct {
	Name    string   `json:"name"`
	Players []string `json:"players"`
}

// Event describes one round.
type Event struct {
	Date        string   `json:"date"`
	Name        string   `json:"name"`
	BestOnHoles []int    `json:"best_on_holes"`
	BestOnPar   int      `json:"best_on_par"`
	Divisions   []string `json:"divisions"`
	Duels       []Duel   `json:"duels"`
}

// Default returns the event assumed for a date with no definition.
func Default(date string) Event {
	return Event{
		Date:        date,
		BestOnHoles: []int{},
		BestOnPar:   15,
		Divisions:   []string{"advanced", "intermediate", "recreational"},
		Duels:       []Duel{},
	}
}

// LoadError reports an invalid event definition.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads and validates the event file at path.
func Load(path string) (Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}
	return Parse(path, data)
}

// Parse validates src against the schema and decodes it. filename is used
// in error positions.
func Parse(filename string, src []byte) (Event, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Event{}, fmt.Errorf("event schema: %w", err)
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return Event{}, formatCUEError(filename, file, err)
	}

	v := schema.Unify(file).LookupPath(cue.ParsePath("event"))
	if !v.Exists() {
		return Event{}, &LoadError{Message: "event is required", Pos: file.Pos()}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Event{}, formatCUEError(filename, file, err)
	}

	var ev Event
	if err := v.Decode(&ev); err != nil {
		return Event{}, formatCUEError(filename, file, err)
	}
	return ev.normalized(), nil
}

func (e Event) normalized() Event {
	if e.BestOnHoles == nil {
		e.BestOnHoles = []int{}
	}
	if e.Divisions == nil {
		e.Divisions = []string{}
	}
	if e.Duels == nil {
		e.Duels = []Duel{}
	}
	return e
}

// IsBestOnHole reports whether the 1-based hole number counts toward the
// best-on contest.
func (e Event) IsBestOnHole(hole int) bool {
	for _, h := range e.BestOnHoles {
		if h == hole {
			return true
		}
	}
	return false
}

// formatCUEError reduces err to a single LoadError pointing into filename.
// A position in filename wins over one in the schema. When no error carries
// one, as with empty disjunctions, the failing field is looked up in file.
func formatCUEError(filename string, file cue.Value, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	for _, e := range errs {
		for _, pos := range errors.Positions(e) {
			if pos.Filename() == filename {
				return &LoadError{Message: e.Error(), Pos: pos}
			}
		}
	}
	for _, e := range errs {
		if pos := fieldPos(file, e.Path()); pos.IsValid() {
			return &LoadError{Message: e.Error(), Pos: pos}
		}
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Message: first.Error()}
}

// fieldPos returns where the field at path is written in file, or
// token.NoPos.
func fieldPos(file cue.Value, path []string) token.Pos {
	if len(path) == 0 {
		return token.NoPos
	}
	sels := make([]cue.Selector, 0, len(path))
	for _, label := range path {
		if i, err := strconv.Atoi(label); err == nil {
			sels = append(sels, cue.Index(i))
			continue
		}
		sels = append(sels, cue.Str(label))
	}
	v := file.LookupPath(cue.MakePath(sels...))
	if !v.Exists() {
		return token.NoPos
	}
	return v.Pos()
}

// Package replay runs recorded sync transcripts through a real ingestion
// session.
//
// A transcript lists the inbound frames of one card broadcast. Replaying
// it exercises the same handshake, join and submission path as a live
// run, with the transport swapped for an in-memory script.
package replay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/discroundup/roundup/internal/dispatch"
	"github.com/discroundup/roundup/internal/frame"
	"github.com/discroundup/roundup/internal/ident"
	"github.com/discroundup/roundup/internal/ingest"
	"github.com/discroundup/roundup/internal/testutil"
)

// replaySyncURL is the nominal endpoint recorded in replayed runs.
const replaySyncURL = "wss://replay.invalid/sockjs"

// Transcript is one recorded broadcast.
type Transcript struct {
	// CardURL is the cardcast link the run was started with.
	CardURL string `yaml:"card_url"`

	// Description is free text shown by the CLI.
	Description string `yaml:"description,omitempty"`

	// IDs are the correlation ids handed out in order. When empty,
	// ids are random.
	IDs []string `yaml:"ids,omitempty"`

	// Frames are the inbound frames in arrival order. A string is sent
	// verbatim ("o", "h", or an "a[...]" array). A mapping is a decoded
	// payload, double-encoded and wrapped before sending.
	Frames []any `yaml:"frames"`

	// HoldOpen keeps the transport open after the last frame instead of
	// hanging up, so timeouts decide how the run ends.
	HoldOpen bool `yaml:"hold_open,omitempty"`

	MetaTimeout    time.Duration `yaml:"meta_timeout,omitempty"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout,omitempty"`
}

// Result is what a replayed run produced.
type Result struct {
	Summary ingest.Summary
	// Sent holds the outbound frames in send order.
	Sent []string
}

// Options configures Run.
type Options struct {
	Publisher ingest.Publisher
	Logger    *slog.Logger
}

// Load reads and validates a transcript file. Unknown fields are rejected.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a transcript.
func Parse(data []byte) (*Transcript, error) {
	var t Transcript
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	return &t, nil
}

func (t *Transcript) validate() error {
	if t.CardURL == "" {
		return fmt.Errorf("card_url is required")
	}
	if _, err := ingest.ParseCardID(t.CardURL); err != nil {
		return err
	}
	if len(t.Frames) == 0 {
		return fmt.Errorf("frames list is required and must be non-empty")
	}
	for i := range t.Frames {
		if _, err := t.frame(i); err != nil {
			return err
		}
	}
	if t.HoldOpen && t.MetaTimeout <= 0 && t.ResolveTimeout <= 0 {
		return fmt.Errorf("hold_open requires meta_timeout or resolve_timeout")
	}
	return nil
}

// frame renders Frames[i] as wire text.
func (t *Transcript) frame(i int) (string, error) {
	switch v := t.Frames[i].(type) {
	case string:
		return v, nil
	case map[string]any:
		payload, err := frame.EncodePayload(v)
		if err != nil {
			return "", fmt.Errorf("frames[%d]: %w", i, err)
		}
		return frame.WrapArray(payload), nil
	default:
		return "", fmt.Errorf("frames[%d]: want string or mapping, got %T", i, v)
	}
}

// Run replays t through a session and submits completed records to sub.
// sub may be nil, in which case nothing is submitted.
//
// The returned error is the session's error. Result is filled either way.
func Run(ctx context.Context, t *Transcript, sub dispatch.Submitter, opts Options) (Result, error) {
	cardID, err := ingest.ParseCardID(t.CardURL)
	if err != nil {
		return Result{}, err
	}

	conn := testutil.NewScriptedConn(len(t.Frames) + 1)
	for i := range t.Frames {
		text, err := t.frame(i)
		if err != nil {
			return Result{}, err
		}
		conn.Push(text)
	}
	if !t.HoldOpen {
		conn.End(nil)
	}

	var ids ident.Generator = ident.Random{}
	if len(t.IDs) > 0 {
		ids = ident.NewFixed("", t.IDs...)
	}

	var dispatcher *dispatch.Dispatcher
	if sub != nil {
		dispatcher = dispatch.New(sub)
		if opts.Logger != nil {
			dispatcher = dispatcher.WithLogger(opts.Logger)
		}
	}

	sess := ingest.NewSession(ingest.Config{
		CardID:     cardID,
		Dialer:     &testutil.ScriptedDialer{Conn: conn},
		IDs:        ids,
		Dispatcher: dispatcher,
		Publisher:  opts.Publisher,
		Logger:     opts.Logger,
		Options: ingest.Options{
			SyncURL:        replaySyncURL,
			MetaTimeout:    t.MetaTimeout,
			ResolveTimeout: t.ResolveTimeout,
		},
	})

	sum, err := sess.Run(ctx)
	return Result{Summary: sum, Sent: conn.Sent()}, err
}

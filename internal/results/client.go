// Package results is an HTTP client for the results store REST API.
//
// Every request carries the static credential as "Authorization: Token
// <token>". The client implements dispatch.Submitter so live ingestion can
// submit joined records straight to a remote store.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/discroundup/roundup/internal/event"
	"github.com/discroundup/roundup/internal/scorecard"
)

// DefaultBaseURL is used when no API URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// errorBodyLimit bounds how much of a failed response is kept in errors.
const errorBodyLimit = 1024

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Client talks to one results store.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL. An empty baseURL means DefaultBaseURL.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid results API URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid results API URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: base,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SubmitScoreRecord posts one joined record.
func (c *Client) SubmitScoreRecord(ctx context.Context, rec scorecard.Record) error {
	return c.do(ctx, http.MethodPost, "/scorecards/", nil, rec, nil)
}

// FetchScores lists stored records. Empty arguments are not sent.
func (c *Client) FetchScores(ctx context.Context, cardID, date string) ([]scorecard.Row, error) {
	q := url.Values{}
	if cardID != "" {
		q.Set("card_id", cardID)
	}
	if date != "" {
		q.Set("date", date)
	}
	rows := []scorecard.Row{}
	if err := c.do(ctx, http.MethodGet, "/scorecards/", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchUsers lists registered players.
func (c *Client) FetchUsers(ctx context.Context) ([]scorecard.Player, error) {
	players := []scorecard.Player{}
	if err := c.do(ctx, http.MethodGet, "/custom-users/", nil, nil, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// FetchEventByDate returns the event defined for date.
func (c *Client) FetchEventByDate(ctx context.Context, date string) (event.Event, error) {
	var ev event.Event
	if err := c.do(ctx, http.MethodGet, "/events/", url.Values{"date": {date}}, nil, &ev); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

// FetchCheckins lists the check-ins for date.
func (c *Client) FetchCheckins(ctx context.Context, date string) ([]scorecard.Checkin, error) {
	checkins := []scorecard.Checkin{}
	if err := c.do(ctx, http.MethodGet, "/checkins/", url.Values{"date": {date}}, nil, &checkins); err != nil {
		return nil, err
	}
	return checkins, nil
}

// do sends one request. body is JSON-encoded when non-nil; out is decoded
// from a 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	// JoinPath cleans the trailing slash the API expects.
	if len(path) > 0 && path[len(path)-1] == '/' && endpoint.Path[len(endpoint.Path)-1] != '/' {
		endpoint.Path += "/"
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	target := endpoint.String()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request to %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	c.logger.Debug("results request", "method", method, "url", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &StatusError{Method: method, URL: target, Status: resp.StatusCode, Body: string(excerpt)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", target, err)
	}
	return nil
}

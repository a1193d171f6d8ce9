package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "civcal/internal/log"
	"civcal/internal/model"
	"civcal/internal/ui"
)

const (
	calendarPath = "/api/calendar"
	maxBodyBytes = 8 << 20
)

// LoadingIndicator is toggled around every range fetch.
type LoadingIndicator interface {
	SetLoading(bool)
}

// EventPayload is the JSON body of POST/PUT /api/calendar.
type EventPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Type        string `json:"type"`
	Start       string `json:"start"`
	End         string `json:"end,omitempty"`
	AllDay      bool   `json:"allDay"`
	RRule       string `json:"rrule,omitempty"`
}

// Client talks to the registry calendar endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
	loading LoadingIndicator
	toaster ui.Toaster
	loc     *time.Location
	now     func() time.Time

	// OnUnauthenticated is called whenever a request finds no valid
	// credential; the agent uses it to start the login flow.
	OnUnauthenticated func()
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLoadingIndicator(l LoadingIndicator) Option {
	return func(c *Client) { c.loading = l }
}

func WithToaster(t ui.Toaster) Option {
	return func(c *Client) { c.toaster = t }
}

func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		creds: creds,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchEvents returns the display events whose start falls in
// [start, end]. Recurring events are expanded inside the range.
func (c *Client) FetchEvents(ctx context.Context, start, end time.Time) ([]model.DisplayEvent, error) {
	if c.loading != nil {
		c.loading.SetLoading(true)
		defer c.loading.SetLoading(false)
	}

	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))

	body, err := c.do(ctx, http.MethodGet, calendarPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Success bool            `json:"success"`
		Events  json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrMalformedResponse
	}
	raw := bytes.TrimSpace(payload.Events)
	if !payload.Success || len(raw) == 0 || raw[0] != '[' {
		return nil, ErrMalformedResponse
	}
	var wire []model.WireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, ErrMalformedResponse
	}

	now := c.now()
	events := make([]model.DisplayEvent, 0, len(wire))
	for _, w := range wire {
		events = append(events, expandWire(w, start, end, now, c.loc)...)
	}

	appLog.Debug("calendar range fetched",
		"range_start", start.Format(time.RFC3339),
		"range_end", end.Format(time.RFC3339),
		"wire_count", len(wire),
		"event_count", len(events),
	)
	return events, nil
}

// LoadRange is FetchEvents for the calendar widget: a failure becomes a
// toast and an empty, still renderable, result.
func (c *Client) LoadRange(ctx context.Context, start, end time.Time) []model.DisplayEvent {
	events, err := c.FetchEvents(ctx, start, end)
	if err != nil {
		appLog.Error("calendar range fetch failed", err,
			"range_start", start.Format(time.RFC3339),
			"range_end", end.Format(time.RFC3339),
		)
		if c.toaster != nil {
			c.toaster.Toast(ui.LevelError, Message(err))
		}
		return []model.DisplayEvent{}
	}
	return events
}

// Create issues POST /api/calendar.
func (c *Client) Create(ctx context.Context, p EventPayload) (model.WireEvent, error) {
	return c.write(ctx, http.MethodPost, calendarPath, p)
}

// Update issues PUT /api/calendar/{id}.
func (c *Client) Update(ctx context.Context, id model.ID, p EventPayload) (model.WireEvent, error) {
	if id == "" {
		return model.WireEvent{}, errors.New("api: update without id")
	}
	return c.write(ctx, http.MethodPut, calendarPath+"/"+url.PathEscape(string(id)), p)
}

// Delete issues DELETE /api/calendar/{id}.
func (c *Client) Delete(ctx context.Context, id model.ID) error {
	if id == "" {
		return errors.New("api: delete without id")
	}
	_, err := c.do(ctx, http.MethodDelete, calendarPath+"/"+url.PathEscape(string(id)), nil)
	return err
}

func (c *Client) write(ctx context.Context, method, path string, p EventPayload) (model.WireEvent, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return model.WireEvent{}, err
	}
	body, err := c.do(ctx, method, path, data)
	if err != nil {
		return model.WireEvent{}, err
	}
	return decodeRecord(body), nil
}

// decodeRecord accepts either the bare record or {event: record}. An
// empty or unrecognized body yields a zero event; the caller refetches.
func decodeRecord(body []byte) model.WireEvent {
	var wrapped struct {
		Event *model.WireEvent `json:"event"`
		Data  *model.WireEvent `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Event != nil {
			return *wrapped.Event
		}
		if wrapped.Data != nil {
			return *wrapped.Data
		}
	}
	var ev model.WireEvent
	_ = json.Unmarshal(body, &ev)
	return ev
}

// do performs an authenticated request and returns the body of a 2xx
// response.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Message: genericFailure, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Message: genericFailure, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.unauthenticated()
		return nil, ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &FetchError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func (c *Client) token() (string, error) {
	if c.creds == nil {
		c.unauthenticated()
		return "", ErrUnauthenticated
	}
	token, err := c.creds.Token()
	if err != nil {
		appLog.Error("credential lookup failed", err)
	}
	token = strings.TrimSpace(token)
	if token == "" || tokenExpired(token, c.now()) {
		c.unauthenticated()
		return "", ErrUnauthenticated
	}
	return token, nil
}

func (c *Client) unauthenticated() {
	if c.OnUnauthenticated != nil {
		c.OnUnauthenticated()
	}
}

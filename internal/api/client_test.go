package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"civcal/internal/model"
	"civcal/internal/ui"
)

// fakeBackend is an in-memory implementation of the calendar endpoints.
type fakeBackend struct {
	t      *testing.T
	mu     sync.Mutex
	nextID int
	events map[string]model.WireEvent
	hits   atomic.Int32
	token  string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{t: t, events: map[string]model.WireEvent{}, token: "secret"}
	srv := httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	b.hits.Add(1)
	if r.Header.Get("Authorization") != "Bearer "+b.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/api/calendar")
	id = strings.TrimPrefix(id, "/")

	switch r.Method {
	case http.MethodGet:
		start, err1 := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		end, err2 := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if err1 != nil || err2 != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"bad range"}`))
			return
		}
		out := []model.WireEvent{}
		for _, ev := range b.events {
			s, err := time.Parse(time.RFC3339, ev.Start)
			if err != nil || s.Before(start) || s.After(end) {
				continue
			}
			out = append(out, ev)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "events": out})

	case http.MethodPost, http.MethodPut:
		var p EventPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPost {
			b.nextID++
			id = strconv.Itoa(b.nextID)
		} else if _, ok := b.events[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"event not found"}`))
			return
		}
		allDay := p.AllDay
		ev := model.WireEvent{
			ID:     model.ID(id),
			Title:  p.Title,
			Start:  p.Start,
			End:    p.End,
			AllDay: &allDay,
			ExtendedProps: model.WireProps{
				Type:        p.Type,
				Description: p.Description,
				Location:    p.Location,
			},
		}
		b.events[id] = ev
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "event": ev})

	case http.MethodDelete:
		if _, ok := b.events[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"event not found"}`))
			return
		}
		delete(b.events, id)
		_, _ = w.Write([]byte(`{"success":true}`))
	}
}

func TestCreateThenFetchRoundTrip(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := NewClient(srv.URL, StaticToken("secret"), WithLocation(time.UTC))
	ctx := context.Background()

	start := time.Date(2025, 5, 10, 10, 30, 0, 0, time.UTC)
	created, err := c.Create(ctx, EventPayload{
		Title:    "Naissance Martin",
		Type:     "birth",
		Start:    start.Format(time.RFC3339),
		End:      start.Add(time.Hour).Format(time.RFC3339),
		Location: "Maternité",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created event has no id")
	}

	events, err := c.FetchEvents(ctx, start.Add(-24*time.Hour), start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.Title != "Naissance Martin" {
		t.Errorf("Title = %q", got.Title)
	}
	if !got.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", got.Start, start)
	}
	if got.ExtendedProps.Category != model.CategoryBirth {
		t.Errorf("Category = %s, want birth", got.ExtendedProps.Category)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	b, srv := newFakeBackend(t)
	c := NewClient(srv.URL, StaticToken("secret"), WithLocation(time.UTC))
	ctx := context.Background()

	created, err := c.Create(ctx, EventPayload{Title: "Décès", Type: "death", Start: "2025-05-10T08:00:00Z"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Update(ctx, created.ID, EventPayload{Title: "Décès Leroy", Type: "death", Start: "2025-05-11T08:00:00Z"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if b.events[string(created.ID)].Title != "Décès Leroy" {
		t.Errorf("update not applied: %+v", b.events[string(created.ID)])
	}

	if err := c.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	err = c.Delete(ctx, created.ID)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusNotFound || fe.Message != "event not found" {
		t.Errorf("second delete err = %v, want 404 FetchError with server message", err)
	}
}

func TestFetchEventsWithoutCredential(t *testing.T) {
	b, srv := newFakeBackend(t)
	redirects := 0
	ind := &ui.Indicator{}
	c := NewClient(srv.URL, StaticToken(""), WithLoadingIndicator(ind))
	c.OnUnauthenticated = func() { redirects++ }

	_, err := c.FetchEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if redirects != 1 {
		t.Errorf("redirects = %d, want 1", redirects)
	}
	if b.hits.Load() != 0 {
		t.Errorf("backend hit %d times, want 0", b.hits.Load())
	}
	if ind.Visible() {
		t.Error("loading indicator left visible")
	}
}

func TestFetchEventsExpiredJWT(t *testing.T) {
	b, srv := newFakeBackend(t)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "agent-12",
		"exp": now.Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	c := NewClient(srv.URL, StaticToken(expired), WithNow(func() time.Time { return now }))
	_, err = c.FetchEvents(context.Background(), now, now.Add(time.Hour))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if b.hits.Load() != 0 {
		t.Errorf("expired token should not reach the backend")
	}
}

func TestFetchEventsServerRejectsToken(t *testing.T) {
	_, srv := newFakeBackend(t)
	redirects := 0
	c := NewClient(srv.URL, StaticToken("wrong"))
	c.OnUnauthenticated = func() { redirects++ }

	_, err := c.FetchEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if redirects != 1 {
		t.Errorf("redirects = %d, want 1", redirects)
	}
}

func TestFetchEventsFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"server error with message", 500, `{"message":"database unavailable"}`, nil, "database unavailable"},
		{"server error with error field", 503, `{"error":"maintenance"}`, nil, "maintenance"},
		{"server error without body", 502, ``, nil, genericFailure},
		{"success false", 200, `{"success":false,"events":[]}`, ErrMalformedResponse, ""},
		{"events not a list", 200, `{"success":true,"events":{"a":1}}`, ErrMalformedResponse, ""},
		{"events missing", 200, `{"success":true}`, ErrMalformedResponse, ""},
		{"not json", 200, `<html>`, ErrMalformedResponse, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ind := &ui.Indicator{}
			c := NewClient(srv.URL, StaticToken("t"), WithLoadingIndicator(ind))
			_, err := c.FetchEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				var fe *FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("err = %T, want *FetchError", err)
				}
				if fe.Message != tt.wantMsg {
					t.Errorf("Message = %q, want %q", fe.Message, tt.wantMsg)
				}
			}
			if ind.Visible() {
				t.Error("loading indicator left visible")
			}
			if ind.Shown() != 1 {
				t.Errorf("indicator shown %d times, want 1", ind.Shown())
			}
		})
	}
}

func TestFetchEventsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, StaticToken("t"))
	_, err := c.FetchEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 {
		t.Fatalf("err = %v, want transport FetchError", err)
	}
	if Message(err) != genericFailure {
		t.Errorf("Message = %q", Message(err))
	}
}

func TestLoadRangeFallsBackToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	board := ui.NewBoard(10)
	c := NewClient(srv.URL, StaticToken("t"), WithToaster(board))
	events := c.LoadRange(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if events == nil || len(events) != 0 {
		t.Fatalf("events = %#v, want empty non-nil slice", events)
	}
	toasts := board.Recent()
	if len(toasts) != 1 || toasts[0].Level != ui.LevelError || toasts[0].Message != "boom" {
		t.Errorf("toasts = %+v", toasts)
	}
}

func TestFetchEventsExpandsRecurrence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"events":[
			{"id":"r1","title":"Permanence état civil","start":"2025-03-03T09:00:00Z","end":"2025-03-03T11:00:00Z","allDay":false,
			 "extendedProps":{"type":"other","rrule":"FREQ=WEEKLY;COUNT=10"}},
			{"id":7,"title":"Mariage","start":"2025-03-08T15:00:00Z","allDay":false,"extendedProps":{"type":"marriage"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("t"), WithLocation(time.UTC))
	rangeStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)

	events, err := c.FetchEvents(context.Background(), rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}

	var weekly []model.DisplayEvent
	for _, ev := range events {
		if ev.ID == "r1" {
			weekly = append(weekly, ev)
		}
	}
	// Mondays in March 2025: 3, 10, 17, 24, 31.
	if len(weekly) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(weekly))
	}
	seen := map[string]bool{}
	for _, occ := range weekly {
		if occ.End == nil || occ.End.Sub(occ.Start) != 2*time.Hour {
			t.Errorf("occurrence %s lost its duration", occ.InstanceKey)
		}
		if seen[occ.InstanceKey] {
			t.Errorf("duplicate instance key %s", occ.InstanceKey)
		}
		seen[occ.InstanceKey] = true
	}
	if len(events) != 6 {
		t.Errorf("total events = %d, want 6", len(events))
	}
}

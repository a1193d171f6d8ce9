package search

import (
	"testing"
	"time"

	"civcal/internal/clock"
	"civcal/internal/model"
)

func sampleEvents() []model.DisplayEvent {
	return []model.DisplayEvent{
		{ID: "1", Title: "Mariage Dupont", InstanceKey: "1", ExtendedProps: model.ExtendedProps{Location: "Mairie de Lyon"}},
		{ID: "2", Title: "Naissance", InstanceKey: "2", ExtendedProps: model.ExtendedProps{Description: "Déclaration ÉLODIE Martin"}},
		{ID: "3", Title: "Décès", InstanceKey: "3"},
	}
}

func TestMatch(t *testing.T) {
	evs := sampleEvents()
	tests := []struct {
		name  string
		ev    model.DisplayEvent
		query string
		want  bool
	}{
		{"empty query", evs[2], "", true},
		{"title case-insensitive", evs[0], "mariage", true},
		{"location", evs[0], "LYON", true},
		{"description accents", evs[1], "élodie", true},
		{"inner words", evs[0], "e de l", true},
		{"no match", evs[2], "lyon", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.ev, tt.query); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestHiddenEmptyQueryRestoresAll(t *testing.T) {
	evs := sampleEvents()
	if h := Hidden(evs, "lyon"); len(h) != 2 || h["1"] {
		t.Fatalf("Hidden(lyon) = %v", h)
	}
	if h := Hidden(evs, ""); len(h) != 0 {
		t.Errorf("Hidden(\"\") = %v, want none", h)
	}
	if h := Hidden(evs, "   "); len(h) != 0 {
		t.Errorf("blank query hid %v", h)
	}
}

func TestHiddenNoMatchHidesAll(t *testing.T) {
	evs := sampleEvents()
	h := Hidden(evs, "zzz-nothing")
	if len(h) != len(evs) {
		t.Errorf("hidden = %d, want %d", len(h), len(evs))
	}
}

func TestFilterDebounce(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	var calls []string
	var last map[string]bool
	f := NewFilter(sampleEvents, func(q string, hidden map[string]bool) {
		calls = append(calls, q)
		last = hidden
	}, WithClock(fc))

	f.Apply("m")
	fc.Advance(100 * time.Millisecond)
	f.Apply("ma")
	fc.Advance(100 * time.Millisecond)
	f.Apply("mar")
	fc.Advance(299 * time.Millisecond)
	if len(calls) != 0 {
		t.Fatalf("evaluated before debounce elapsed: %v", calls)
	}

	fc.Advance(time.Millisecond)
	if len(calls) != 1 || calls[0] != "mar" {
		t.Fatalf("calls = %v, want [mar]", calls)
	}
	if len(last) != 1 || !last["3"] {
		t.Errorf("hidden = %v, want only 3", last)
	}
	if f.Query() != "mar" {
		t.Errorf("Query = %q", f.Query())
	}
}

func TestFilterStopCancelsPending(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	called := false
	f := NewFilter(sampleEvents, func(string, map[string]bool) { called = true }, WithClock(fc), WithDebounce(50*time.Millisecond))

	f.Apply("x")
	f.Stop()
	fc.Advance(time.Second)
	if called {
		t.Error("evaluation ran after Stop")
	}
}

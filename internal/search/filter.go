// Package search filters the rendered events by a free-text query
// without going back to the event store.
package search

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"civcal/internal/clock"
	appLog "civcal/internal/log"
	"civcal/internal/model"
)

const DefaultDebounce = 300 * time.Millisecond

// Match reports whether ev matches query. Matching is a case-insensitive
// substring test over title, description and location.
func Match(ev model.DisplayEvent, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	fold := cases.Fold()
	hay := fold.String(ev.Title + " " + ev.ExtendedProps.Description + " " + ev.ExtendedProps.Location)
	return strings.Contains(hay, fold.String(q))
}

// Hidden returns the keys of events that do not match query. An empty
// query hides nothing.
func Hidden(events []model.DisplayEvent, query string) map[string]bool {
	hidden := make(map[string]bool)
	if strings.TrimSpace(query) == "" {
		return hidden
	}
	for _, ev := range events {
		if !Match(ev, query) {
			hidden[ev.Key()] = true
		}
	}
	return hidden
}

// Filter debounces queries and hands the resulting visibility to apply.
type Filter struct {
	clock  clock.Clock
	delay  time.Duration
	events func() []model.DisplayEvent
	apply  func(query string, hidden map[string]bool)

	mu      sync.Mutex
	pending clock.Timer
	seq     uint64
	query   string
}

type Option func(*Filter)

func WithClock(c clock.Clock) Option {
	return func(f *Filter) { f.clock = c }
}

func WithDebounce(d time.Duration) Option {
	return func(f *Filter) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// NewFilter creates a filter over the events returned by source. apply
// receives every evaluation.
func NewFilter(source func() []model.DisplayEvent, apply func(query string, hidden map[string]bool), opts ...Option) *Filter {
	f := &Filter{
		clock:  clock.Real{},
		delay:  DefaultDebounce,
		events: source,
		apply:  apply,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply schedules an evaluation of query after the debounce delay,
// cancelling any evaluation still pending.
func (f *Filter) Apply(query string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending != nil {
		f.pending.Stop()
	}
	f.seq++
	seq := f.seq
	f.pending = f.clock.AfterFunc(f.delay, func() {
		f.mu.Lock()
		if seq != f.seq {
			f.mu.Unlock()
			return
		}
		f.pending = nil
		f.mu.Unlock()
		f.Evaluate(query)
	})
}

// Evaluate filters the current events immediately. A debounced
// evaluation still pending is dropped.
func (f *Filter) Evaluate(query string) map[string]bool {
	f.mu.Lock()
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.seq++
	f.query = query
	f.mu.Unlock()

	var events []model.DisplayEvent
	if f.events != nil {
		events = f.events()
	}
	hidden := Hidden(events, query)

	appLog.Debug("search applied", "query", query, "hidden", len(hidden), "total", len(events))
	if f.apply != nil {
		f.apply(query, hidden)
	}
	return hidden
}

// Query returns the last evaluated query.
func (f *Filter) Query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Stop cancels a pending evaluation.
func (f *Filter) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.seq++
}

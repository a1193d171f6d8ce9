// Package calendar holds the interactive state of the agenda: the loaded
// range, the rendered events, search visibility and the edit form.
package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"civcal/internal/api"
	"civcal/internal/clock"
	appLog "civcal/internal/log"
	"civcal/internal/model"
	"civcal/internal/search"
	"civcal/internal/ui"
)

type State int

const (
	Idle State = iota
	FormOpen
	Submitting
)

func (s State) String() string {
	switch s {
	case FormOpen:
		return "form-open"
	case Submitting:
		return "submitting"
	default:
		return "idle"
	}
}

var (
	ErrNoForm        = errors.New("calendar: no form open")
	ErrNoDetail      = errors.New("calendar: no event selected")
	ErrBusy          = errors.New("calendar: a save is already in progress")
	ErrCancelled     = errors.New("calendar: cancelled")
	ErrEventNotFound = errors.New("calendar: event not found")
)

// EventStore is the subset of the API client the controller drives.
type EventStore interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]model.DisplayEvent, error)
	Create(ctx context.Context, p api.EventPayload) (model.WireEvent, error)
	Update(ctx context.Context, id model.ID, p api.EventPayload) (model.WireEvent, error)
	Delete(ctx context.Context, id model.ID) error
}

// Scheduler is re-armed after every successful load.
type Scheduler interface {
	Schedule(events []model.DisplayEvent, now time.Time)
}

// Visible is a rendered event with its current search visibility.
type Visible struct {
	model.DisplayEvent
	Hidden bool `json:"hidden"`
}

// Controller owns the calendar view state. All methods are safe for
// concurrent use; network calls run without holding the lock.
type Controller struct {
	store     EventStore
	toaster   ui.Toaster
	scheduler Scheduler
	confirm   Confirmer
	clock     clock.Clock
	filter    *search.Filter
	debounce  time.Duration

	mu         sync.Mutex
	state      State
	form       *EventForm
	detail     *model.DisplayEvent
	rangeStart time.Time
	rangeEnd   time.Time
	events     []model.DisplayEvent
	hidden     map[string]bool
	query      string
	gen        uint64
	loadedAt   time.Time

	refresh *refresher
}

type Option func(*Controller)

func WithToaster(t ui.Toaster) Option {
	return func(c *Controller) { c.toaster = t }
}

func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

func WithConfirmer(cf Confirmer) Option {
	return func(c *Controller) { c.confirm = cf }
}

func WithClock(cl clock.Clock) Option {
	return func(c *Controller) { c.clock = cl }
}

func WithSearchDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

func New(store EventStore, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		confirm:  ContextConfirmer{},
		clock:    clock.Real{},
		debounce: search.DefaultDebounce,
		hidden:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.filter = search.NewFilter(c.renderedEvents, c.applyVisibility,
		search.WithClock(c.clock),
		search.WithDebounce(c.debounce),
	)
	return c
}

// SetRange loads [start, end] and replaces the rendered events. If a newer
// load was requested while this one was in flight, its result is dropped
// and false is returned.
func (c *Controller) SetRange(ctx context.Context, start, end time.Time) bool {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.rangeStart, c.rangeEnd = start, end
	c.mu.Unlock()

	events, err := c.store.FetchEvents(ctx, start, end)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		appLog.Debug("dropping stale range load",
			"range_start", start.Format(time.RFC3339),
			"range_end", end.Format(time.RFC3339),
		)
		return false
	}
	if err != nil || events == nil {
		events = []model.DisplayEvent{}
	}
	c.events = events
	c.hidden = search.Hidden(events, c.query)
	c.loadedAt = c.clock.Now()
	c.mu.Unlock()

	if err != nil {
		appLog.Error("calendar range load failed", err,
			"range_start", start.Format(time.RFC3339),
			"range_end", end.Format(time.RFC3339),
		)
		c.toast(ui.LevelError, api.Message(err))
		return true
	}

	if c.scheduler != nil {
		c.scheduler.Schedule(events, c.clock.Now())
	}
	return true
}

// Refetch reloads the current range, or the current month when no range
// was set yet.
func (c *Controller) Refetch(ctx context.Context) bool {
	start, end := c.Range()
	if start.IsZero() {
		start, end = MonthRange(c.clock.Now())
	}
	return c.SetRange(ctx, start, end)
}

func (c *Controller) Range() (time.Time, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rangeStart, c.rangeEnd
}

// Events returns the rendered events in start order with their
// visibility.
func (c *Controller) Events() []Visible {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Visible, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, Visible{DisplayEvent: ev, Hidden: c.hidden[ev.Key()]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// LoadedAt is the time of the last applied load.
func (c *Controller) LoadedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedAt
}

// SetQuery filters the rendered events after the search debounce.
func (c *Controller) SetQuery(q string) {
	c.filter.Apply(q)
}

// ApplyQuery filters the rendered events immediately.
func (c *Controller) ApplyQuery(q string) {
	c.filter.Evaluate(q)
}

func (c *Controller) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

func (c *Controller) renderedEvents() []model.DisplayEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.DisplayEvent(nil), c.events...)
}

func (c *Controller) applyVisibility(query string, hidden map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query
	c.hidden = hidden
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Form returns a copy of the open form.
func (c *Controller) Form() (EventForm, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.form == nil {
		return EventForm{}, false
	}
	return *c.form, true
}

// Detail returns the event opened with EventClick.
func (c *Controller) Detail() (model.DisplayEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return model.DisplayEvent{}, false
	}
	return *c.detail, true
}

// DateClick opens an empty form for a new event starting at t.
func (c *Controller) DateClick(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return ErrBusy
	}
	end := t.Add(time.Hour)
	c.form = &EventForm{Category: model.CategoryOther, Start: t, End: &end}
	c.state = FormOpen
	return nil
}

// EventClick shows the read-only detail of a rendered event. key is the
// occurrence key or the event id.
func (c *Controller) EventClick(key string) (model.DisplayEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.findLocked(key)
	if !ok {
		return model.DisplayEvent{}, ErrEventNotFound
	}
	c.detail = &ev
	return ev, nil
}

// CloseDetail dismisses the detail view.
func (c *Controller) CloseDetail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detail = nil
}

// Edit opens the form prefilled from the current detail.
func (c *Controller) Edit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return ErrBusy
	}
	if c.detail == nil {
		return ErrNoDetail
	}
	f := formFromEvent(*c.detail)
	c.form = &f
	c.state = FormOpen
	return nil
}

// SetForm replaces the open form's fields. The event id of the open
// form is kept.
func (c *Controller) SetForm(f EventForm) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != FormOpen || c.form == nil {
		return ErrNoForm
	}
	f.ID = c.form.ID
	c.form = &f
	return nil
}

func (c *Controller) CancelForm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return
	}
	c.form = nil
	c.state = Idle
}

// Save validates and submits the open form. A validation failure sends
// nothing and leaves the form open; a request failure reopens the form
// with its content intact.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == Submitting:
		c.mu.Unlock()
		return ErrBusy
	case c.state != FormOpen || c.form == nil:
		c.mu.Unlock()
		return ErrNoForm
	}
	return c.saveLocked(ctx)
}

// Submit opens the form for the event identified by key, or for a new
// event when key is empty, fills it with f and saves it. The target is
// resolved and the form claimed in one step, so concurrent callers never
// act on each other's selection.
func (c *Controller) Submit(ctx context.Context, key string, f EventForm) error {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	f.ID = ""
	if key != "" {
		ev, ok := c.findLocked(key)
		if !ok {
			c.mu.Unlock()
			return ErrEventNotFound
		}
		c.detail = &ev
		f.ID = ev.ID
	}
	c.form = &f
	c.state = FormOpen
	return c.saveLocked(ctx)
}

// saveLocked submits the open form. c.mu must be held; it is released
// before any network call.
func (c *Controller) saveLocked(ctx context.Context) error {
	form := *c.form
	if err := form.Validate(); err != nil {
		c.mu.Unlock()
		var ve *ValidationError
		if errors.As(err, &ve) {
			c.toast(ui.LevelWarning, ve.Message)
		}
		return err
	}
	c.state = Submitting
	c.mu.Unlock()

	var err error
	if form.ID == "" {
		_, err = c.store.Create(ctx, form.Payload())
	} else {
		_, err = c.store.Update(ctx, form.ID, form.Payload())
	}

	c.mu.Lock()
	if err != nil {
		c.state = FormOpen
		c.mu.Unlock()
		appLog.Error("failed to save event", err, "id", string(form.ID))
		c.toast(ui.LevelError, api.Message(err))
		return err
	}
	c.state = Idle
	c.form = nil
	c.detail = nil
	c.mu.Unlock()

	if form.ID == "" {
		c.toast(ui.LevelSuccess, "Événement créé")
	} else {
		c.toast(ui.LevelSuccess, "Événement modifié")
	}
	c.Refetch(ctx)
	return nil
}

// Delete removes an event after confirmation. A declined confirmation
// returns ErrCancelled and changes nothing.
func (c *Controller) Delete(ctx context.Context, id model.ID) error {
	if id == "" {
		return ErrEventNotFound
	}
	if c.confirm != nil && !c.confirm.Confirm(ctx, "Supprimer cet événement ?") {
		return ErrCancelled
	}

	if err := c.store.Delete(ctx, id); err != nil {
		appLog.Error("failed to delete event", err, "id", string(id))
		c.toast(ui.LevelError, api.Message(err))
		return err
	}

	c.mu.Lock()
	c.detail = nil
	c.mu.Unlock()

	c.toast(ui.LevelSuccess, "Événement supprimé")
	c.Refetch(ctx)
	return nil
}

// Move applies a drag or resize. The new position is rendered right away;
// if the update fails the range is reloaded once so the stored position
// wins.
func (c *Controller) Move(ctx context.Context, key string, start time.Time, end *time.Time) error {
	c.mu.Lock()
	idx := c.indexLocked(key)
	if idx < 0 {
		c.mu.Unlock()
		return ErrEventNotFound
	}
	ev := c.events[idx]
	moved := ev
	moved.Start = start
	moved.End = nil
	if end != nil {
		e := *end
		moved.End = &e
	}
	moved.ExtendedProps.Start = start.Format(time.RFC3339)
	c.events[idx] = moved
	c.mu.Unlock()

	form := formFromEvent(moved)
	_, err := c.store.Update(ctx, ev.ID, form.Payload())
	if err != nil {
		appLog.Error("failed to move event", err, "id", string(ev.ID))
		c.toast(ui.LevelError, api.Message(err))
		c.Refetch(ctx)
		return err
	}

	c.toast(ui.LevelSuccess, "Événement déplacé")
	return nil
}

func (c *Controller) findLocked(key string) (model.DisplayEvent, bool) {
	if i := c.indexLocked(key); i >= 0 {
		return c.events[i], true
	}
	return model.DisplayEvent{}, false
}

func (c *Controller) indexLocked(key string) int {
	for i, ev := range c.events {
		if ev.Key() == key {
			return i
		}
	}
	for i, ev := range c.events {
		if string(ev.ID) == key {
			return i
		}
	}
	return -1
}

func (c *Controller) toast(level ui.Level, msg string) {
	if c.toaster != nil && msg != "" {
		c.toaster.Toast(level, msg)
	}
}

// Close stops background work owned by the controller.
func (c *Controller) Close() {
	c.StopAutoRefresh()
	c.filter.Stop()
}

// MonthRange returns the first and last instant of t's month in t's
// location.
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// DaysRange returns [start of t's day, start + days).
func DaysRange(t time.Time, days int) (time.Time, time.Time) {
	if days <= 0 {
		return MonthRange(t)
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, days).Add(-time.Second)
}

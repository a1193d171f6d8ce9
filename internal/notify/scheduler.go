package notify

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"civcal/internal/clock"
	appLog "civcal/internal/log"
	"civcal/internal/model"
)

const (
	soonWindow   = 5 * time.Minute
	thirtyOffset = 29 * time.Minute
)

type timerKey struct {
	eventID     string
	instanceKey string
	phase       Phase
}

type armed struct {
	timer clock.Timer
	at    time.Time
	n     Notification
}

// Pending describes an armed reminder.
type Pending struct {
	EventID     string
	InstanceKey string
	Phase       Phase
	At          time.Time
}

// Scheduler keeps one timer per (event, occurrence, phase). Calling
// Schedule again with a fresh load replaces the armed set: timers whose
// event disappeared or moved are cancelled and unchanged ones are kept.
type Scheduler struct {
	clock    clock.Clock
	notifier Notifier
	gate     *Gate
	ledger   Ledger

	mu      sync.Mutex
	timers  map[timerKey]*armed
	stopped bool
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLedger(l Ledger) Option {
	return func(s *Scheduler) { s.ledger = l }
}

func WithGate(g *Gate) Option {
	return func(s *Scheduler) { s.gate = g }
}

func NewScheduler(n Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clock.Real{},
		notifier: n,
		timers:   make(map[timerKey]*armed),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = Granted()
	}
	if s.ledger == nil {
		s.ledger = NewMemoryLedger()
	}
	return s
}

// Schedule applies the reminder policy to every event, with
// Δ = start - now:
//
//	Δ < -5m      nothing
//	0 < Δ <= 5m  immediate "starting soon"
//	Δ > 5m       "starting in 30 minutes" at start-29m, if still ahead
//	Δ > 0        "starting now" at start
func (s *Scheduler) Schedule(events []model.DisplayEvent, now time.Time) {
	wanted := make(map[timerKey]*armed)
	var immediate []Notification

	for _, ev := range events {
		if ev.Start.IsZero() {
			continue
		}
		delta := ev.Start.Sub(now)
		// Events in the past, including the last 5 minutes, get nothing.
		if delta <= 0 {
			continue
		}

		base := Notification{
			EventID:     string(ev.ID),
			InstanceKey: ev.Key(),
			Start:       ev.Start,
			Timeout:     DismissAfter,
		}

		if delta <= soonWindow {
			n := base
			n.Phase = PhaseSoon
			n.Title = ev.Title
			n.Body = soonBody(roundUpMinutes(delta))
			immediate = append(immediate, n)
		} else if offset := delta - thirtyOffset; offset > 0 {
			n := base
			n.Phase = PhaseThirty
			n.Title = ev.Title
			n.Body = "Commence dans 30 minutes"
			wanted[keyOf(n)] = &armed{at: now.Add(offset), n: n}
		}

		n := base
		n.Phase = PhaseNow
		n.Title = ev.Title
		n.Body = "Commence maintenant"
		wanted[keyOf(n)] = &armed{at: ev.Start, n: n}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	for k, cur := range s.timers {
		next, ok := wanted[k]
		if ok && next.at.Equal(cur.at) && next.n.Title == cur.n.Title {
			delete(wanted, k)
			continue
		}
		cur.timer.Stop()
		delete(s.timers, k)
	}
	for k, a := range wanted {
		s.armLocked(k, a, now)
	}
	armedCount := len(s.timers)
	s.mu.Unlock()

	appLog.Debug("notifications scheduled", "armed", armedCount, "immediate", len(immediate))

	for _, n := range immediate {
		s.deliver(n)
	}
}

func (s *Scheduler) armLocked(k timerKey, a *armed, now time.Time) {
	a.timer = s.clock.AfterFunc(a.at.Sub(now), func() {
		s.mu.Lock()
		cur, ok := s.timers[k]
		if !ok || cur != a {
			s.mu.Unlock()
			return
		}
		delete(s.timers, k)
		s.mu.Unlock()

		s.deliver(a.n)
	})
	s.timers[k] = a
}

func (s *Scheduler) deliver(n Notification) {
	done, err := s.ledger.Delivered(n.EventID, n.InstanceKey, string(n.Phase), n.Start)
	if err != nil {
		appLog.Error("notification ledger lookup failed", err, "event", n.EventID)
	}
	if done {
		return
	}
	if s.notifier == nil || !s.gate.Allowed() {
		return
	}

	if err := s.notifier.Notify(n); err != nil {
		appLog.Error("failed to show notification", err, "event", n.EventID, "phase", string(n.Phase))
		return
	}
	if err := s.ledger.MarkDelivered(n.EventID, n.InstanceKey, string(n.Phase), n.Start); err != nil {
		appLog.Error("failed to record notification", err, "event", n.EventID)
	}
}

// Pending lists the armed reminders, earliest first.
func (s *Scheduler) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, 0, len(s.timers))
	for k, a := range s.timers {
		out = append(out, Pending{EventID: k.eventID, InstanceKey: k.instanceKey, Phase: k.phase, At: a.at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].InstanceKey < out[j].InstanceKey
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Stop cancels every armed timer. Later calls to Schedule are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, k)
	}
	s.stopped = true
}

func keyOf(n Notification) timerKey {
	return timerKey{eventID: n.EventID, instanceKey: n.InstanceKey, phase: n.Phase}
}

// roundUpMinutes rounds d up to the next 5-minute bucket.
func roundUpMinutes(d time.Duration) int {
	buckets := (d + soonWindow - 1) / soonWindow
	return int(buckets) * 5
}

func soonBody(minutes int) string {
	if minutes == 1 {
		return "Commence dans 1 minute"
	}
	return fmt.Sprintf("Commence dans %d minutes", minutes)
}

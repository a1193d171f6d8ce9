// Package notify arms desktop reminders for loaded calendar events.
package notify

import (
	"sync"
	"time"

	appLog "civcal/internal/log"
)

type Phase string

const (
	PhaseSoon   Phase = "soon"
	PhaseThirty Phase = "thirty-minutes-before"
	PhaseNow    Phase = "now"
)

// DismissAfter is how long a shown notification stays on screen.
const DismissAfter = 10 * time.Second

// Notification is one reminder ready to be shown.
type Notification struct {
	EventID     string
	InstanceKey string
	Phase       Phase
	Start       time.Time
	Title       string
	Body        string
	Timeout     time.Duration
}

type Notifier interface {
	Notify(n Notification) error
}

// Ledger remembers delivered reminders so that a reload never shows the
// same phase twice for the same start instant.
type Ledger interface {
	Delivered(eventID, instanceKey, phase string, start time.Time) (bool, error)
	MarkDelivered(eventID, instanceKey, phase string, start time.Time) error
}

type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

// Gate asks for notification permission at most once. The answer,
// including a denial, is kept for the life of the process.
type Gate struct {
	once  sync.Once
	ask   func() Permission
	state Permission
}

func NewGate(ask func() Permission) *Gate {
	return &Gate{ask: ask}
}

// Granted returns a gate that never asks.
func Granted() *Gate {
	return NewGate(func() Permission { return PermissionGranted })
}

func (g *Gate) Allowed() bool {
	g.once.Do(func() {
		p := PermissionDenied
		if g.ask != nil {
			p = g.ask()
		}
		if p != PermissionGranted {
			p = PermissionDenied
			appLog.Info("desktop notifications disabled")
		}
		g.state = p
	})
	return g.state == PermissionGranted
}

type ledgerKey struct {
	eventID, instanceKey, phase string
	start                       int64
}

// MemoryLedger is a Ledger that lives only as long as the process.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[ledgerKey]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[ledgerKey]struct{})}
}

func (l *MemoryLedger) Delivered(eventID, instanceKey, phase string, start time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[ledgerKey{eventID, instanceKey, phase, start.Unix()}]
	return ok, nil
}

func (l *MemoryLedger) MarkDelivered(eventID, instanceKey, phase string, start time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[ledgerKey{eventID, instanceKey, phase, start.Unix()}] = struct{}{}
	return nil
}

// Package ui holds the user-facing feedback primitives shared by the
// calendar components: toasts and the loading indicator.
package ui

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	appLog "civcal/internal/log"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Toast is a non-blocking notification shown to the user.
type Toast struct {
	Level   Level     `json:"-"`
	Kind    string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Toaster interface {
	Toast(level Level, message string)
}

const defaultBoardSize = 50

// Board logs every toast and keeps the most recent ones for the web UI.
type Board struct {
	mu     sync.Mutex
	max    int
	toasts []Toast
}

func NewBoard(max int) *Board {
	if max <= 0 {
		max = defaultBoardSize
	}
	return &Board{max: max}
}

func (b *Board) Toast(level Level, message string) {
	switch level {
	case LevelError:
		appLog.Error("toast", errors.New(message), "level", level.String())
	default:
		appLog.Info("toast", "level", level.String(), "message", message)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.toasts = append(b.toasts, Toast{Level: level, Kind: level.String(), Message: message, At: time.Now()})
	if len(b.toasts) > b.max {
		b.toasts = b.toasts[len(b.toasts)-b.max:]
	}
}

// Recent returns a copy of the retained toasts, oldest first.
func (b *Board) Recent() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Toast, len(b.toasts))
	copy(out, b.toasts)
	return out
}

// Count returns how many retained toasts have the given level.
func (b *Board) Count(level Level) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.toasts {
		if t.Level == level {
			n++
		}
	}
	return n
}

// Indicator is the shared loading-indicator flag. Nested loads keep it
// visible until the last one finishes.
type Indicator struct {
	active atomic.Int32
	shown  atomic.Int64
}

func (i *Indicator) SetLoading(on bool) {
	if on {
		if i.active.Add(1) == 1 {
			i.shown.Add(1)
		}
		return
	}
	if i.active.Add(-1) < 0 {
		i.active.Store(0)
	}
}

func (i *Indicator) Visible() bool {
	return i.active.Load() > 0
}

// Shown reports how many times the indicator went from hidden to visible.
func (i *Indicator) Shown() int64 {
	return i.shown.Load()
}

package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Category classifies a civil event and drives its colors.
type Category string

const (
	CategoryBirth    Category = "birth"
	CategoryMarriage Category = "marriage"
	CategoryDeath    Category = "death"
	CategoryOther    Category = "other"
)

// ParseCategory maps a wire value to a Category. The registry backend
// sends either the English names or their French equivalents; anything
// else is CategoryOther.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "birth", "naissance":
		return CategoryBirth
	case "marriage", "mariage":
		return CategoryMarriage
	case "death", "deces", "décès":
		return CategoryDeath
	default:
		return CategoryOther
	}
}

// ID is an opaque event identifier. The backend emits it either as a
// string or as a number, both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// CalendarEvent is the persisted record owned by the registry backend.
type CalendarEvent struct {
	ID          ID
	UserID      string
	Title       string
	Description string
	Location    string
	Category    Category

	Start  time.Time
	End    *time.Time // nil for point-in-time markers
	AllDay bool

	Color           string
	BackgroundColor string
	BorderColor     string
	TextColor       string

	IsPublic bool
	RRule    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Palette is the resolved color triple of an event.
type Palette struct {
	Fill   string `json:"fill"`
	Border string `json:"border"`
	Text   string `json:"text"`
}

// ExtendedProps carries the fields the calendar widget does not
// interpret itself.
type ExtendedProps struct {
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	// Start is the event start re-emitted as RFC 3339, whatever the
	// input format was.
	Start string `json:"start"`
}

// DisplayEvent is the render model built from a CalendarEvent for one
// render cycle. It is rebuilt on every load and never persisted.
type DisplayEvent struct {
	ID     ID         `json:"id"`
	Title  string     `json:"title"`
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end,omitempty"`
	AllDay bool       `json:"allDay"`

	Colors    Palette `json:"colors"`
	Badge     string  `json:"badge"`
	TimeLabel string  `json:"timeLabel"`

	// InstanceKey identifies one occurrence of a (possibly recurring)
	// event. It is unique within a loaded range.
	InstanceKey string `json:"instanceKey"`

	ExtendedProps ExtendedProps `json:"extendedProps"`
}

// Key returns the per-occurrence key used for visibility and timers.
func (e DisplayEvent) Key() string {
	if e.InstanceKey != "" {
		return e.InstanceKey
	}
	return string(e.ID)
}

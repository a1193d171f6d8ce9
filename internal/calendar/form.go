package calendar

import (
	"strings"
	"time"

	"civcal/internal/api"
	"civcal/internal/model"
)

// ValidationError is a form problem detected before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// EventForm is the edit form for one event. A zero ID means create.
type EventForm struct {
	ID          model.ID
	Title       string
	Description string
	Location    string
	Category    model.Category
	Start       time.Time
	End         *time.Time
	AllDay      bool
}

func (f EventForm) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return &ValidationError{Field: "title", Message: "Le titre est obligatoire"}
	}
	if f.Start.IsZero() {
		return &ValidationError{Field: "start", Message: "La date de début est obligatoire"}
	}
	if f.End != nil && f.End.Before(f.Start) {
		return &ValidationError{Field: "end", Message: "La fin ne peut pas précéder le début"}
	}
	return nil
}

// Payload builds the request body. All-day events are sent as plain
// dates, timed events as RFC 3339 instants.
func (f EventForm) Payload() api.EventPayload {
	category := f.Category
	if category == "" {
		category = model.CategoryOther
	}
	p := api.EventPayload{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Location:    strings.TrimSpace(f.Location),
		Type:        string(category),
		Start:       formatFormTime(f.Start, f.AllDay),
		AllDay:      f.AllDay,
	}
	if f.End != nil {
		p.End = formatFormTime(*f.End, f.AllDay)
	}
	return p
}

func formatFormTime(t time.Time, allDay bool) string {
	if allDay {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// formFromEvent prefills the form from a rendered event.
func formFromEvent(ev model.DisplayEvent) EventForm {
	f := EventForm{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.ExtendedProps.Description,
		Location:    ev.ExtendedProps.Location,
		Category:    model.ParseCategory(string(ev.ExtendedProps.Category)),
		Start:       ev.Start,
		AllDay:      ev.AllDay,
	}
	if ev.End != nil {
		end := *ev.End
		f.End = &end
	}
	return f
}

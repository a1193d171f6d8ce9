package display

import (
	"strings"
	"time"

	"civcal/internal/model"
)

// Layouts accepted for wire timestamps, tried in order. Layouts without
// a zone are interpreted in the display location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses a wire timestamp. The boolean is false when v is
// empty or matches no known layout.
func ParseTime(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Record normalizes a wire event into a CalendarEvent. It never fails:
// a missing or unparseable start becomes now, allDay is true unless the
// wire says false, and an unknown category becomes "other".
func Record(w model.WireEvent, now time.Time, loc *time.Location) model.CalendarEvent {
	if loc == nil {
		loc = time.Local
	}

	start, ok := ParseTime(w.Start, loc)
	if !ok {
		start = now.In(loc)
	}

	var end *time.Time
	if t, ok := ParseTime(w.End, loc); ok {
		end = &t
	}

	allDay := true
	if w.AllDay != nil && !*w.AllDay {
		allDay = false
	}

	return model.CalendarEvent{
		ID:              w.ID,
		UserID:          w.UserID,
		Title:           w.Title,
		Description:     w.DescriptionText(),
		Location:        w.LocationText(),
		Category:        model.ParseCategory(w.CategoryName()),
		Start:           start,
		End:             end,
		AllDay:          allDay,
		Color:           w.Color,
		BackgroundColor: w.BackgroundColor,
		BorderColor:     w.BorderColor,
		TextColor:       w.TextColor,
		IsPublic:        w.IsPublic,
		RRule:           w.ExtendedProps.RRule,
	}
}

// FromRecord builds the render model of ev.
func FromRecord(ev model.CalendarEvent) model.DisplayEvent {
	colors := PaletteFor(ev.Category)
	// Explicit colors stored on the record win over the category palette.
	// The generic color only replaces the fill.
	if ev.Color != "" {
		colors.Fill = ev.Color
	}
	if ev.BackgroundColor != "" {
		colors.Fill = ev.BackgroundColor
	}
	if ev.BorderColor != "" {
		colors.Border = ev.BorderColor
	}
	if ev.TextColor != "" {
		colors.Text = ev.TextColor
	}

	out := model.DisplayEvent{
		ID:     ev.ID,
		Title:  ev.Title,
		Start:  ev.Start,
		AllDay: ev.AllDay,
		Colors: colors,
		Badge:  BadgeText(ev.Category),
		ExtendedProps: model.ExtendedProps{
			Category:    ev.Category,
			Description: ev.Description,
			Location:    ev.Location,
			Start:       ev.Start.Format(time.RFC3339),
		},
	}
	if ev.End != nil {
		end := *ev.End
		out.End = &end
	}
	out.InstanceKey = InstanceKey(ev.ID, ev.Start)
	out.TimeLabel = TimeLabel(out)
	return out
}

// ToDisplayEvent maps a wire event straight to its render model.
func ToDisplayEvent(w model.WireEvent, now time.Time, loc *time.Location) model.DisplayEvent {
	return FromRecord(Record(w, now, loc))
}

// InstanceKey is the per-occurrence key of an event starting at start.
func InstanceKey(id model.ID, start time.Time) string {
	return string(id) + "@" + start.UTC().Format(time.RFC3339)
}

// TimeLabel is the short time text shown in a calendar cell.
func TimeLabel(ev model.DisplayEvent) string {
	if ev.AllDay {
		return "Toute la journée"
	}
	label := ev.Start.Format("15:04")
	if ev.End != nil && ev.End.After(ev.Start) {
		label += "–" + ev.End.In(ev.Start.Location()).Format("15:04")
	}
	return label
}

package display

import (
	"testing"
	"time"

	"civcal/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestToDisplayEventUnparseableStart(t *testing.T) {
	loc := time.UTC
	for _, start := range []string{"", "not a date", "32/13/2025"} {
		t.Run(start, func(t *testing.T) {
			before := time.Now()
			ev := ToDisplayEvent(model.WireEvent{ID: "1", Title: "Acte", Start: start}, time.Now(), loc)
			after := time.Now()

			if ev.Start.Before(before.Add(-time.Second)) || ev.Start.After(after) {
				t.Errorf("substituted start %v outside [%v, %v]", ev.Start, before, after)
			}
			if ev.ExtendedProps.Start == "" {
				t.Error("extendedProps.start must always be emitted")
			}
		})
	}
}

func TestToDisplayEventFallbackPalette(t *testing.T) {
	other := PaletteFor(model.CategoryOther)
	for _, typ := range []string{"", "general", "adoption", "OTHER"} {
		ev := ToDisplayEvent(model.WireEvent{ID: "1", Start: "2025-01-01", ExtendedProps: model.WireProps{Type: typ}}, time.Now(), time.UTC)
		if ev.Colors.Fill != other.Fill || ev.Colors.Border != other.Border {
			t.Errorf("type %q: colors = %+v, want %+v", typ, ev.Colors, other)
		}
		if ev.ExtendedProps.Category != model.CategoryOther {
			t.Errorf("type %q: category = %s, want other", typ, ev.ExtendedProps.Category)
		}
	}
}

func TestToDisplayEventKnownCategories(t *testing.T) {
	for _, c := range []model.Category{model.CategoryBirth, model.CategoryMarriage, model.CategoryDeath} {
		ev := ToDisplayEvent(model.WireEvent{ID: "1", Start: "2025-01-01", ExtendedProps: model.WireProps{Type: string(c)}}, time.Now(), time.UTC)
		want := PaletteFor(c)
		if ev.Colors != want {
			t.Errorf("%s: colors = %+v, want %+v", c, ev.Colors, want)
		}
		if ev.Colors.Fill == PaletteFor(model.CategoryOther).Fill {
			t.Errorf("%s: should not use fallback fill", c)
		}
	}
}

func TestToDisplayEventAllDayDefault(t *testing.T) {
	tests := []struct {
		name   string
		allDay *bool
		want   bool
	}{
		{"absent", nil, true},
		{"true", boolPtr(true), true},
		{"false", boolPtr(false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ToDisplayEvent(model.WireEvent{Start: "2025-01-01T10:00:00Z", AllDay: tt.allDay}, time.Now(), time.UTC)
			if ev.AllDay != tt.want {
				t.Errorf("AllDay = %v, want %v", ev.AllDay, tt.want)
			}
		})
	}
}

func TestToDisplayEventNormalizesStart(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"2025-06-14T09:30:00Z", "2025-06-14T11:30:00+02:00"},
		{"2025-06-14T09:30", "2025-06-14T09:30:00+02:00"},
		{"2025-06-14", "2025-06-14T00:00:00+02:00"},
		{"2025-06-14 09:30:00", "2025-06-14T09:30:00+02:00"},
	}
	for _, tt := range tests {
		ev := ToDisplayEvent(model.WireEvent{ID: "9", Start: tt.in}, time.Now(), paris)
		if ev.ExtendedProps.Start != tt.want {
			t.Errorf("%q: extendedProps.start = %q, want %q", tt.in, ev.ExtendedProps.Start, tt.want)
		}
	}
}

func TestToDisplayEventFields(t *testing.T) {
	w := model.WireEvent{
		ID:     "42",
		Title:  "Mariage Dupont",
		Start:  "2025-06-14T14:00:00Z",
		End:    "2025-06-14T15:00:00Z",
		AllDay: boolPtr(false),
		Color:  "#123456",
		ExtendedProps: model.WireProps{
			Type:        "mariage",
			Description: "Salle des mariages",
			Location:    "Hôtel de ville",
		},
	}
	ev := ToDisplayEvent(w, time.Now(), time.UTC)

	if ev.Colors.Fill != "#123456" {
		t.Errorf("explicit color should win, got %s", ev.Colors.Fill)
	}
	if want := PaletteFor(model.CategoryMarriage).Border; ev.Colors.Border != want {
		t.Errorf("Border = %s, want palette border %s", ev.Colors.Border, want)
	}
	if ev.Badge != "Mariage" {
		t.Errorf("Badge = %q", ev.Badge)
	}
	if ev.End == nil || !ev.End.Equal(time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v", ev.End)
	}
	if ev.TimeLabel != "14:00–15:00" {
		t.Errorf("TimeLabel = %q", ev.TimeLabel)
	}
	if ev.ExtendedProps.Location != "Hôtel de ville" || ev.ExtendedProps.Description != "Salle des mariages" {
		t.Errorf("extendedProps = %+v", ev.ExtendedProps)
	}
	if ev.InstanceKey != "42@2025-06-14T14:00:00Z" {
		t.Errorf("InstanceKey = %q", ev.InstanceKey)
	}
}

func TestTimeLabelAllDay(t *testing.T) {
	ev := model.DisplayEvent{AllDay: true, Start: time.Now()}
	if got := TimeLabel(ev); got != "Toute la journée" {
		t.Errorf("TimeLabel = %q", got)
	}
}

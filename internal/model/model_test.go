package model

import (
	"encoding/json"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"birth", CategoryBirth},
		{"Naissance", CategoryBirth},
		{"mariage", CategoryMarriage},
		{"décès", CategoryDeath},
		{"deces", CategoryDeath},
		{"general", CategoryOther},
		{"", CategoryOther},
		{"adoption", CategoryOther},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWireEventIDForms(t *testing.T) {
	var events []WireEvent
	body := `[{"id":"64f1a"},{"id":42},{"id":null},{}]`
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []ID{"64f1a", "42", "", ""}
	for i, ev := range events {
		if ev.ID != want[i] {
			t.Errorf("events[%d].ID = %q, want %q", i, ev.ID, want[i])
		}
	}
}

func TestWirePropsPreferExtended(t *testing.T) {
	w := WireEvent{
		Type:        "death",
		Description: "flat",
		ExtendedProps: WireProps{
			Type:     "birth",
			Location: "Mairie",
		},
	}
	if w.CategoryName() != "birth" {
		t.Errorf("CategoryName = %q, want birth", w.CategoryName())
	}
	if w.DescriptionText() != "flat" {
		t.Errorf("DescriptionText = %q, want flat", w.DescriptionText())
	}
	if w.LocationText() != "Mairie" {
		t.Errorf("LocationText = %q, want Mairie", w.LocationText())
	}
}

func TestDisplayEventKey(t *testing.T) {
	if k := (DisplayEvent{ID: "7"}).Key(); k != "7" {
		t.Errorf("Key = %q, want 7", k)
	}
	if k := (DisplayEvent{ID: "7", InstanceKey: "7@x"}).Key(); k != "7@x" {
		t.Errorf("Key = %q, want 7@x", k)
	}
}

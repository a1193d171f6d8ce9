package model

// WireEvent is an event as sent by GET /api/calendar and returned by the
// create/update endpoints. Fields the backend may place either at the
// top level or under extendedProps are accepted in both places.
type WireEvent struct {
	ID     ID     `json:"id"`
	UserID string `json:"userId,omitempty"`
	Title  string `json:"title"`
	Start  string `json:"start"`
	End    string `json:"end,omitempty"`
	AllDay *bool  `json:"allDay,omitempty"`

	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	BorderColor     string `json:"borderColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`

	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	IsPublic    bool   `json:"isPublic,omitempty"`

	ExtendedProps WireProps `json:"extendedProps"`
}

type WireProps struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	RRule       string `json:"rrule,omitempty"`
}

// CategoryName returns the raw category, preferring extendedProps.
func (w WireEvent) CategoryName() string {
	if w.ExtendedProps.Type != "" {
		return w.ExtendedProps.Type
	}
	return w.Type
}

func (w WireEvent) DescriptionText() string {
	if w.ExtendedProps.Description != "" {
		return w.ExtendedProps.Description
	}
	return w.Description
}

func (w WireEvent) LocationText() string {
	if w.ExtendedProps.Location != "" {
		return w.ExtendedProps.Location
	}
	return w.Location
}

package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"civcal/internal/api"
	appLog "civcal/internal/log"
	"civcal/internal/model"
)

const productID = "civcal"

// WriteICS renders the events as an iCalendar feed. Each occurrence
// becomes its own VEVENT keyed by the occurrence key.
func WriteICS(w io.Writer, name string, events []model.DisplayEvent) error {
	cal := ical.NewCalendarFor(productID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := time.Now()
	for _, ev := range events {
		if ev.Start.IsZero() {
			continue
		}
		vev := cal.AddEvent(eventUID(ev))
		vev.SetDtStampTime(stamp)
		vev.SetSummary(ev.Title)
		if ev.ExtendedProps.Description != "" {
			vev.SetDescription(ev.ExtendedProps.Description)
		}
		if ev.ExtendedProps.Location != "" {
			vev.SetLocation(ev.ExtendedProps.Location)
		}
		if ev.ExtendedProps.Category != "" {
			vev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(ev.ExtendedProps.Category)))
		}
		if ev.Colors.Fill != "" {
			vev.SetColor(ev.Colors.Fill)
		}

		if ev.AllDay {
			vev.SetAllDayStartAt(ev.Start)
			end := ev.Start.AddDate(0, 0, 1)
			if ev.End != nil && ev.End.After(ev.Start) {
				end = *ev.End
			}
			vev.SetAllDayEndAt(end)
			continue
		}
		vev.SetStartAt(ev.Start)
		if ev.End != nil {
			vev.SetEndAt(*ev.End)
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("export: serialize ics: %w", err)
	}
	return nil
}

func eventUID(ev model.DisplayEvent) string {
	return ev.Key() + "@" + productID
}

// ReadICS turns the VEVENTs of an iCalendar file into create requests.
// Events without a summary or start are skipped and logged.
func ReadICS(r io.Reader, loc *time.Location) ([]api.EventPayload, error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("export: parse ics: %w", err)
	}

	var out []api.EventPayload
	for _, vev := range cal.Events() {
		p, perr := payloadFromVEvent(vev, loc)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "uid", propValue(vev, ical.ComponentPropertyUniqueId))
			continue
		}
		out = append(out, p)
	}
	appLog.Info("ics import parsed", "event_count", len(out))
	return out, nil
}

func payloadFromVEvent(vev *ical.VEvent, loc *time.Location) (api.EventPayload, error) {
	var p api.EventPayload
	p.Title = strings.TrimSpace(propValue(vev, ical.ComponentPropertySummary))
	if p.Title == "" {
		return p, errors.New("missing SUMMARY")
	}
	p.Description = propValue(vev, ical.ComponentPropertyDescription)
	p.Location = propValue(vev, ical.ComponentPropertyLocation)
	p.Type = string(model.ParseCategory(firstCategory(propValue(vev, ical.ComponentPropertyCategories))))
	p.RRule = propValue(vev, ical.ComponentPropertyRrule)

	dtStart := vev.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return p, errors.New("missing DTSTART")
	}
	p.AllDay = isDateValue(dtStart)

	if p.AllDay {
		start, err := vev.GetAllDayStartAt()
		if err != nil {
			return p, fmt.Errorf("DTSTART: %w", err)
		}
		p.Start = start.Format("2006-01-02")
		if end, err := vev.GetAllDayEndAt(); err == nil && end.After(start) {
			p.End = end.Format("2006-01-02")
		}
		return p, nil
	}

	start, err := vev.GetStartAt()
	if err != nil {
		return p, fmt.Errorf("DTSTART: %w", err)
	}
	p.Start = start.In(loc).Format(time.RFC3339)
	if end, err := vev.GetEndAt(); err == nil && !end.Before(start) {
		p.End = end.In(loc).Format(time.RFC3339)
	}
	return p, nil
}

func propValue(vev *ical.VEvent, prop ical.ComponentProperty) string {
	if p := vev.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// isDateValue detects VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func firstCategory(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

package api

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"civcal/internal/display"
	appLog "civcal/internal/log"
	"civcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// expandWire turns one wire event into display events. A plain event
// maps to exactly one; an event carrying an RRULE in extendedProps is
// expanded into its occurrences inside [rangeStart, rangeEnd], each
// keeping the event id and the original duration.
func expandWire(w model.WireEvent, rangeStart, rangeEnd, now time.Time, loc *time.Location) []model.DisplayEvent {
	if loc == nil {
		loc = time.Local
	}
	rec := display.Record(w, now, loc)
	if rec.RRule == "" {
		return []model.DisplayEvent{display.FromRecord(rec)}
	}

	r, err := rrule.StrToRRule(rec.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "id", rec.ID, "rrule", rec.RRule)
		return []model.DisplayEvent{display.FromRecord(rec)}
	}
	r.DTStart(rec.Start)

	occTimes := r.Between(rangeStart.In(rec.Start.Location()), rangeEnd.In(rec.Start.Location()), true)
	if len(occTimes) > defaultMaxOccurrencesPerEvent {
		appLog.Error("expand: truncated occurrences due to cap",
			errors.New("max occurrences reached"),
			"id", rec.ID,
			"cap", defaultMaxOccurrencesPerEvent,
		)
		occTimes = occTimes[:defaultMaxOccurrencesPerEvent]
	}

	var dur time.Duration
	if rec.End != nil {
		dur = rec.End.Sub(rec.Start)
	}

	out := make([]model.DisplayEvent, 0, len(occTimes))
	for _, occStart := range occTimes {
		occ := rec
		occ.Start = occStart.In(loc)
		if rec.End != nil {
			end := occ.Start.Add(dur)
			occ.End = &end
		}
		out = append(out, display.FromRecord(occ))
	}
	return out
}

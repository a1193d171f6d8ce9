package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"civcal/internal/export"
	appLog "civcal/internal/log"
	"civcal/internal/model"
	"civcal/internal/search"
)

//go:embed templates/agenda.html
var agendaHTML string

var agendaTmpl = template.Must(template.New("agenda").Parse(agendaHTML))

var (
	weekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	months   = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

type agendaPage struct {
	Title     string
	Range     string
	Query     string
	Days      []agendaDay
	Generated string
}

type agendaDay struct {
	Label  string
	Events []agendaEvent
}

type agendaEvent struct {
	Time     string
	Title    string
	Badge    string
	Location string
	Fill     string
	Border   string
	Text     string
}

// visibleEvents returns the events to print. A q parameter filters the
// page on its own without touching the interactive search.
func (s *Server) visibleEvents(r *http.Request) ([]model.DisplayEvent, string) {
	all := s.cal.Events()
	query := s.cal.Query()
	hidden := make(map[string]bool, len(all))
	for _, v := range all {
		hidden[v.Key()] = v.Hidden
	}

	if q := r.URL.Query(); q.Has("q") {
		query = q.Get("q")
		events := make([]model.DisplayEvent, 0, len(all))
		for _, v := range all {
			events = append(events, v.DisplayEvent)
		}
		hidden = search.Hidden(events, query)
	}

	out := make([]model.DisplayEvent, 0, len(all))
	for _, v := range all {
		if !hidden[v.Key()] {
			out = append(out, v.DisplayEvent)
		}
	}
	return out, query
}

// handleAgenda renders the loaded range as a printable list grouped by
// day. The root element carries data-ready="true" once rendered, which
// the PDF printer waits for.
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	events, query := s.visibleEvents(r)
	start, end := s.cal.Range()

	page := agendaPage{
		Title:     "Agenda de l'état civil",
		Query:     query,
		Days:      groupByDay(events, s.loc),
		Generated: time.Now().In(s.loc).Format("02/01/2006 15:04"),
	}
	if !start.IsZero() {
		page.Range = fmt.Sprintf("du %s au %s", longDate(start.In(s.loc)), longDate(end.In(s.loc)))
	}

	var buf bytes.Buffer
	if err := agendaTmpl.Execute(&buf, page); err != nil {
		appLog.Error("failed to render agenda", err)
		http.Error(w, "failed to render agenda", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleICS exports the visible events of the loaded range.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	events, _ := s.visibleEvents(r)

	var buf bytes.Buffer
	if err := export.WriteICS(&buf, "État civil", events); err != nil {
		appLog.Error("failed to export calendar", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="civcal.ics"`)
	_, _ = w.Write(buf.Bytes())
}

// groupByDay buckets events by their local start date. Events arrive in
// start order, so days come out sorted.
func groupByDay(events []model.DisplayEvent, loc *time.Location) []agendaDay {
	var days []agendaDay
	var current time.Time
	for _, ev := range events {
		start := ev.Start.In(loc)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		if len(days) == 0 || !day.Equal(current) {
			current = day
			days = append(days, agendaDay{Label: longDate(day)})
		}
		d := &days[len(days)-1]
		d.Events = append(d.Events, agendaEvent{
			Time:     ev.TimeLabel,
			Title:    ev.Title,
			Badge:    ev.Badge,
			Location: ev.ExtendedProps.Location,
			Fill:     ev.Colors.Fill,
			Border:   ev.Colors.Border,
			Text:     ev.Colors.Text,
		})
	}
	return days
}

// longDate formats t as "mercredi 12 mars 2025".
func longDate(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d", weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Year())
}

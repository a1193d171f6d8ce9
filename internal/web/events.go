package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civcal/internal/api"
	"civcal/internal/calendar"
	"civcal/internal/display"
	"civcal/internal/export"
	appLog "civcal/internal/log"
	"civcal/internal/model"
	"civcal/internal/notify"
	"civcal/internal/ui"
)

const maxBodyBytes = 1 << 20

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []calendar.Visible `json:"events"`
	Query           string             `json:"query"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	LoadedAt        time.Time          `json:"loaded_at"`
	DisplayTimeZone string             `json:"display_timezone"`
}

// eventRequest is the body of create and update calls. Times use any
// layout display.ParseTime accepts.
type eventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Type        string `json:"type"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllDay      bool   `json:"allDay"`
}

type moveRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) snapshot() eventsResponse {
	start, end := s.cal.Range()
	return eventsResponse{
		Events:          s.cal.Events(),
		Query:           s.cal.Query(),
		RangeStart:      start,
		RangeEnd:        end,
		LoadedAt:        s.cal.LoadedAt(),
		DisplayTimeZone: s.loc.String(),
	}
}

// handleEvents returns the rendered events of the loaded range.
//
// GET /api/events?q=mariage
//   - q: when present, the search filter is applied right away before
//     the response is built. An empty q shows everything again.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query(); q.Has("q") {
		s.cal.ApplyQuery(q.Get("q"))
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleRange switches the loaded range.
//
// POST /api/range?start=2025-03-01&end=2025-03-31
// POST /api/range?start=2025-03-10&days=7
//
// Without end or days the month containing start is loaded. Without
// start the current month is reloaded.
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().In(s.loc)

	start, end := calendar.MonthRange(now)
	if v := q.Get("start"); v != "" {
		t, ok := display.ParseTime(v, s.loc)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start, end = calendar.DaysRange(t, parseIntDefault(q.Get("days"), 0))
	}
	if v := q.Get("end"); v != "" {
		t, ok := display.ParseTime(v, s.loc)
		if !ok || t.Before(start) {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		end = t
	}

	if !s.cal.SetRange(r.Context(), start, end) {
		writeError(w, http.StatusConflict, "a newer range was requested")
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleSearch records a keystroke-driven query. The filter runs after
// the search debounce, so the response carries no events.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"q"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.cal.SetQuery(body.Query)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.cal.Refetch(r.Context())
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readForm(w, r)
	if !ok {
		return
	}
	if err := s.cal.Submit(r.Context(), "", form); err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.snapshot())
}

// handleUpdate replaces the fields of an event. The id may also be an
// occurrence key; edits always apply to the stored event.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readForm(w, r)
	if !ok {
		return
	}
	if err := s.cal.Submit(r.Context(), r.PathValue("id"), form); err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleMove applies a drag or resize to one rendered occurrence.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, ok := display.ParseTime(req.Start, s.loc)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	var end *time.Time
	if req.End != "" {
		t, ok := display.ParseTime(req.End, s.loc)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		end = &t
	}

	if err := s.cal.Move(r.Context(), r.PathValue("id"), start, end); err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleDelete removes an event. The caller confirms with ?confirm=1;
// without it nothing is sent to the backend.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); ok {
		ctx = calendar.WithConfirmation(ctx)
	}
	if err := s.cal.Delete(ctx, model.ID(r.PathValue("id"))); err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleToasts(w http.ResponseWriter, _ *http.Request) {
	toasts := []ui.Toast{}
	if s.toasts != nil {
		toasts = s.toasts.Recent()
	}
	writeJSON(w, http.StatusOK, map[string]any{"toasts": toasts})
}

type reminderDTO struct {
	EventID     string       `json:"event_id"`
	InstanceKey string       `json:"instance_key"`
	Phase       notify.Phase `json:"phase"`
	At          time.Time    `json:"at"`
}

func (s *Server) handleReminders(w http.ResponseWriter, _ *http.Request) {
	out := []reminderDTO{}
	if s.reminders != nil {
		for _, p := range s.reminders.Pending() {
			out = append(out, reminderDTO{EventID: p.EventID, InstanceKey: p.InstanceKey, Phase: p.Phase, At: p.At.In(s.loc)})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": out})
}

// handleDocument downloads a backend PDF and returns it inline.
//
// GET /api/document?path=/api/registrations/42/pdf
//
// Only paths on the configured backend are accepted.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		writeError(w, http.StatusNotFound, "documents are not available")
		return
	}
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		writeError(w, http.StatusBadRequest, "path must be absolute on the backend")
		return
	}

	data, err := s.documents.Fetch(r.Context(), s.cfg.APIBaseURL+path)
	if err != nil {
		appLog.Error("document download failed", err, "path", path)
		if errors.Is(err, export.ErrNotPDF) {
			writeError(w, http.StatusBadGateway, "the backend did not return a PDF")
			return
		}
		writeCalendarError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// readForm decodes an eventRequest into a form. It writes the 400
// response itself and reports false on failure. A missing start is left
// for the form validation to reject.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (calendar.EventForm, bool) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return calendar.EventForm{}, false
	}

	form := calendar.EventForm{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Category:    model.ParseCategory(req.Type),
		AllDay:      req.AllDay,
	}
	if strings.TrimSpace(req.Start) != "" {
		t, ok := display.ParseTime(req.Start, s.loc)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid start")
			return calendar.EventForm{}, false
		}
		form.Start = t
	}
	if strings.TrimSpace(req.End) != "" {
		t, ok := display.ParseTime(req.End, s.loc)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid end")
			return calendar.EventForm{}, false
		}
		form.End = &t
	}
	return form, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeCalendarError maps controller and client errors to HTTP statuses.
// The message is the same text the toast shows.
func writeCalendarError(w http.ResponseWriter, err error) {
	var ve *calendar.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Message)
	case errors.Is(err, calendar.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, calendar.ErrCancelled):
		writeError(w, http.StatusConflict, "confirmation required")
	case errors.Is(err, calendar.ErrBusy), errors.Is(err, calendar.ErrNoForm), errors.Is(err, calendar.ErrNoDetail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, api.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, api.Message(err))
	default:
		appLog.Debug("calendar request failed", "error", err.Error())
		writeError(w, http.StatusBadGateway, api.Message(err))
	}
}

package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"opscal/internal/drag"
	"opscal/internal/layout"
	appLog "opscal/internal/log"
	"opscal/internal/model"
	"opscal/internal/view"
)

type dayView struct {
	Key     string    `json:"key"`
	Start   time.Time `json:"start"`
	InMonth bool      `json:"in_month"`
	Today   bool      `json:"today"`

	AllDay []model.Event   `json:"all_day,omitempty"`
	Timed  []layout.Placed `json:"timed,omitempty"`
	Events []model.Event   `json:"events,omitempty"`
	More   int             `json:"more,omitempty"`
}

type monthView struct {
	Month  time.Month       `json:"month"`
	Window model.ViewWindow `json:"window"`
	Days   []dayView        `json:"days"`
}

type viewResponse struct {
	Window        model.ViewWindow    `json:"window"`
	Title         string              `json:"title"`
	Timezone      string              `json:"timezone"`
	PixelsPerHour float64             `json:"pixels_per_hour"`
	Days          []dayView           `json:"days,omitempty"`
	Months        []monthView         `json:"months,omitempty"`
	Agenda        []model.Event       `json:"agenda,omitempty"`
	Calendars     []model.CalendarRef `json:"calendars"`
	Dragging      *drag.Session       `json:"dragging,omitempty"`
}

var errBadAnchor = errors.New("anchor must be RFC3339 or YYYY-MM-DD")

// requestView reads ?kind= and ?anchor=, defaulting to the navigator, and
// makes the request the navigator's new position.
func (s *Server) requestView(r *http.Request) (model.ViewKind, time.Time, error) {
	s.navMu.Lock()
	defer s.navMu.Unlock()

	kind, anchor := s.nav.Kind, s.nav.Anchor
	q := r.URL.Query()
	if v := q.Get("kind"); v != "" {
		k, err := view.ParseKind(v)
		if err != nil {
			return "", time.Time{}, err
		}
		kind = k
	}
	if v := q.Get("anchor"); v != "" {
		a, err := s.parseAnchor(v)
		if err != nil {
			return "", time.Time{}, err
		}
		anchor = a
	}
	s.nav.Kind, s.nav.Anchor = kind, anchor
	return kind, anchor, nil
}

func (s *Server) parseAnchor(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(s.loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, s.loc); err == nil {
		return t, nil
	}
	return time.Time{}, errBadAnchor
}

// renderFor returns the current render when it matches kind's window for
// anchor, fetching otherwise. Previews are never part of the render.
func (s *Server) renderFor(ctx context.Context, kind model.ViewKind, anchor time.Time, force bool) (*rendered, model.ViewWindow, error) {
	w, err := view.ResolveWindow(kind, anchor)
	if err != nil {
		return nil, model.ViewWindow{}, err
	}

	if !force {
		s.currentMu.RLock()
		cur := s.current
		s.currentMu.RUnlock()
		if cur != nil && cur.kind == kind {
			if cw, err := view.ResolveWindow(cur.kind, cur.anchor); err == nil && cw.Start.Equal(w.Start) {
				return cur, w, nil
			}
		}
	}

	r, err := s.load(ctx, kind, anchor)
	return r, w, err
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	kind, anchor, err := s.requestView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rd, win, err := s.renderFor(r.Context(), kind, anchor, r.URL.Query().Get("refresh") == "1")
	if err != nil {
		appLog.Error("api view: fetch failed", err, "kind", kind, "anchor", anchor.Format(time.RFC3339))
		writeError(w, http.StatusBadGateway, "failed to fetch events")
		return
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), s.cfg.Grid.MonthCellLimit)
	writeJSON(w, http.StatusOK, s.buildView(kind, anchor, win, rd.data, limit))
}

// buildView lays out data for the given window. It runs on every request so
// drag previews are always read fresh.
func (s *Server) buildView(kind model.ViewKind, anchor time.Time, win model.ViewWindow, data model.ViewData, limit int) viewResponse {
	resp := viewResponse{
		Window:        win,
		Title:         title(kind, anchor, win),
		Timezone:      s.loc.String(),
		PixelsPerHour: s.engine.Grid.PixelsPerHour,
		Calendars:     data.Calendars,
	}
	if sess, ok := s.ctrl.Active(); ok {
		resp.Dragging = &sess
	}

	today := layout.DayKey(view.StartOfDay(s.now().In(s.loc)))

	switch kind {
	case model.ViewDay, model.ViewWeek:
		days := view.DayWindows(win)
		buckets := layout.BucketByDay(data.Events, days)
		for _, d := range days {
			key := layout.DayKey(d.Start)
			allDay, _ := layout.SplitAllDay(buckets[key])
			resp.Days = append(resp.Days, dayView{
				Key:     key,
				Start:   d.Start,
				InMonth: true,
				Today:   key == today,
				AllDay:  allDay,
				Timed:   s.engine.LayoutDay(d, buckets[key], data.Calendars),
			})
		}
	case model.ViewMonth:
		resp.Days = monthDays(view.MonthGrid(anchor), data.Events, limit, today)
	case model.ViewYear:
		for i, mw := range view.YearWindows(anchor) {
			first := time.Date(anchor.Year(), time.Month(i+1), 1, 0, 0, 0, 0, anchor.Location())
			resp.Months = append(resp.Months, monthView{
				Month:  first.Month(),
				Window: mw,
				Days:   monthDays(view.MonthGrid(first), data.Events, limit, today),
			})
		}
	case model.ViewAgenda:
		resp.Agenda = layout.Agenda(data.Events, win)
	}
	return resp
}

func monthDays(cells []view.Cell, events []model.Event, limit int, today string) []dayView {
	days := make([]model.ViewWindow, len(cells))
	for i, c := range cells {
		days[i] = c.Day
	}
	buckets := layout.BucketByDay(events, days)

	out := make([]dayView, 0, len(cells))
	for _, c := range cells {
		key := layout.DayKey(c.Day.Start)
		shown, more := layout.Truncate(buckets[key], limit)
		out = append(out, dayView{
			Key:     key,
			Start:   c.Day.Start,
			InMonth: c.InMonth,
			Today:   key == today,
			Events:  shown,
			More:    more,
		})
	}
	return out
}

func title(kind model.ViewKind, anchor time.Time, win model.ViewWindow) string {
	switch kind {
	case model.ViewDay:
		return anchor.Format("Monday, January 2, 2006")
	case model.ViewWeek:
		last := win.End.AddDate(0, 0, -1)
		return win.Start.Format("Jan 2") + " - " + last.Format("Jan 2, 2006")
	case model.ViewYear:
		return anchor.Format("2006")
	default:
		return view.MonthRange(anchor).Start.Format("January 2006")
	}
}

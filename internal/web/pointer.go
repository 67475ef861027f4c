package web

import (
	"encoding/json"
	"net/http"
	"time"

	"opscal/internal/drag"
	"opscal/internal/ics"
	appLog "opscal/internal/log"
	"opscal/internal/model"
)

type pointerDownRequest struct {
	EventID string      `json:"event_id"`
	Target  drag.Target `json:"target"`
	drag.Pointer
}

type pointerMoveResponse struct {
	Applied bool        `json:"applied"`
	Preview *model.Span `json:"preview,omitempty"`
}

type pointerUpResponse struct {
	Committed bool   `json:"committed"`
	RequestID string `json:"request_id,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handlePointerDown(w http.ResponseWriter, r *http.Request) {
	var req pointerDownRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ev, ok := s.currentEvent(req.EventID)
	if !ok {
		writeError(w, http.StatusNotFound, "event not in current view")
		return
	}
	started := s.ctrl.PointerDown(ev, req.Target, req.Pointer)
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

func (s *Server) handlePointerMove(w http.ResponseWriter, r *http.Request) {
	var p drag.Pointer
	if !decodeBody(w, r, &p) {
		return
	}
	span, ok := s.ctrl.PointerMove(p)
	resp := pointerMoveResponse{Applied: ok}
	if ok {
		resp.Preview = &span
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePointerUp serves both pointer-up and pointer-leave; leaving the
// grid commits like a release.
func (s *Server) handlePointerUp(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ctrl.PointerUp()
	if !ok {
		writeJSON(w, http.StatusOK, pointerUpResponse{})
		return
	}
	if s.dispatcher.Updater == nil {
		appLog.Warn("drag commit dropped: no event updater configured", "event_id", req.EventID)
		s.setNotice(Notice{Level: "error", Message: "Event store is not configured", EventID: req.EventID})
		writeJSON(w, http.StatusOK, pointerUpResponse{})
		return
	}
	s.dispatcher.Dispatch(r.Context(), req)
	writeJSON(w, http.StatusAccepted, pointerUpResponse{Committed: true, RequestID: req.ID})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": s.ctrl.Click(req.EventID)})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	s.navMu.Lock()
	handled, err := s.nav.HandleKey(key)
	kind, anchor := s.nav.Kind, s.nav.Anchor
	win, werr := s.nav.Window()
	s.navMu.Unlock()

	if err == nil {
		err = werr
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handled": handled,
		"kind":    kind,
		"anchor":  anchor,
		"window":  win,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, anchor, err := s.requestView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rd, win, err := s.renderFor(r.Context(), kind, anchor, false)
	if err != nil {
		appLog.Error("api export: fetch failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch events")
		return
	}

	events := make([]model.Event, 0, len(rd.data.Events))
	for _, ev := range rd.data.Events {
		if ev.Span().Overlaps(win.Start, win.End) {
			events = append(events, ev)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="opscal-`+string(kind)+`-`+win.Start.Format("20060102")+`.ics"`)
	_, _ = w.Write([]byte(ics.Export("opscal "+string(kind), events, s.now().In(time.UTC))))
}

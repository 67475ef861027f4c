package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"opscal/internal/config"
	"opscal/internal/drag"
	"opscal/internal/layout"
	appLog "opscal/internal/log"
	"opscal/internal/model"
	"opscal/internal/view"
)

// Fetcher pulls view data for one window.
type Fetcher interface {
	FetchViewData(ctx context.Context, kind model.ViewKind, anchor time.Time) (model.ViewData, error)
}

// Server exposes the calendar grid: view JSON, the HTML time grid, the
// pointer endpoints driving the drag controller, ICS export and the PNG
// preview.
type Server struct {
	cfg     *config.Config
	fetcher Fetcher
	mux     *http.ServeMux
	loc     *time.Location
	now     func() time.Time

	engine     *layout.Engine
	ctrl       *drag.Controller
	dispatcher *drag.Dispatcher

	navMu sync.Mutex
	nav   *view.Navigator

	// current holds the data of the last render. It is replaced wholesale
	// on every refetch.
	currentMu sync.RWMutex
	current   *rendered

	noticeMu sync.Mutex
	notice   *Notice
}

type rendered struct {
	kind      model.ViewKind
	anchor    time.Time
	data      model.ViewData
	fetchedAt time.Time
}

// Notice is a transient user-facing message, e.g. a failed commit.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	EventID string    `json:"event_id,omitempty"`
	At      time.Time `json:"at"`
}

// Options carries the collaborators of a Server.
type Options struct {
	Fetcher Fetcher
	Updater drag.TimeUpdater
	// Now is injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// NewServer wires the layout engine and drag controller from cfg.Grid so
// that row height and drag scale share one pixels-per-hour value.
func NewServer(cfg *config.Config, opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location()

	grid := layout.Grid{
		PixelsPerHour:    cfg.Grid.PixelsPerHour,
		MinVisualMinutes: cfg.Grid.MinVisualMinutes,
	}
	ctrl := drag.NewController(drag.Config{
		Grid:             grid,
		SnapMinutes:      cfg.Grid.SnapMinutes,
		MinResizeMinutes: cfg.Grid.MinResizeMinutes,
	}, layout.NewPreviewMap())

	kind, err := view.ParseKind(cfg.DefaultView)
	if err != nil {
		kind = model.ViewWeek
	}

	s := &Server{
		cfg:     cfg,
		fetcher: opts.Fetcher,
		mux:     http.NewServeMux(),
		loc:     loc,
		now:     now,
		engine: &layout.Engine{
			Grid:         grid,
			Previews:     ctrl.Previews(),
			DefaultColor: cfg.DefaultColor,
		},
		ctrl: ctrl,
		nav:  view.NewNavigator(kind, func() time.Time { return now().In(loc) }),
	}
	s.dispatcher = &drag.Dispatcher{
		Updater: opts.Updater,
		Timeout: cfg.API.Timeout(),
		OnError: func(req drag.CommitRequest, err error) {
			s.setNotice(Notice{Level: "error", Message: "Could not reschedule event: " + err.Error(), EventID: req.EventID})
		},
		OnDone: func(drag.CommitRequest) {
			if err := s.Refetch(context.Background()); err != nil {
				appLog.Error("refetch after commit failed", err)
			}
		},
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Wait blocks until in-flight commits finish. Used on shutdown.
func (s *Server) Wait() {
	s.dispatcher.Wait()
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="opscal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/pointer/down", s.handlePointerDown)
	s.mux.HandleFunc("POST /api/pointer/move", s.handlePointerMove)
	s.mux.HandleFunc("POST /api/pointer/up", s.handlePointerUp)
	s.mux.HandleFunc("POST /api/pointer/leave", s.handlePointerUp)
	s.mux.HandleFunc("POST /api/click", s.handleClick)
	s.mux.HandleFunc("GET /api/notice", s.handleNotice)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExport)
	s.mux.HandleFunc("GET /grid", s.handleGrid)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// PreviewPath is where snapshots of /grid are written and served from.
func (s *Server) PreviewPath() string {
	return filepath.Join(s.cfg.CacheDir, "preview.png")
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.PreviewPath())
}

// Refetch reloads the navigator's current window, replacing the last
// render's data with server truth.
func (s *Server) Refetch(ctx context.Context) error {
	s.navMu.Lock()
	kind, anchor := s.nav.Kind, s.nav.Anchor
	s.navMu.Unlock()
	_, err := s.load(ctx, kind, anchor)
	return err
}

func (s *Server) load(ctx context.Context, kind model.ViewKind, anchor time.Time) (*rendered, error) {
	data := model.ViewData{Events: []model.Event{}, Calendars: []model.CalendarRef{}}
	if s.fetcher != nil {
		var err error
		data, err = s.fetcher.FetchViewData(ctx, kind, anchor)
		if err != nil {
			return nil, err
		}
	}
	r := &rendered{kind: kind, anchor: anchor, data: data, fetchedAt: s.now()}
	s.currentMu.Lock()
	s.current = r
	s.currentMu.Unlock()
	return r, nil
}

func (s *Server) currentEvent(id string) (model.Event, bool) {
	s.currentMu.RLock()
	defer s.currentMu.RUnlock()
	if s.current == nil {
		return model.Event{}, false
	}
	return s.current.data.Event(id)
}

func (s *Server) setNotice(n Notice) {
	n.At = s.now()
	s.noticeMu.Lock()
	s.notice = &n
	s.noticeMu.Unlock()
}

// handleNotice returns and clears the pending notice (204 if none).
func (s *Server) handleNotice(w http.ResponseWriter, _ *http.Request) {
	s.noticeMu.Lock()
	n := s.notice
	s.notice = nil
	s.noticeMu.Unlock()
	if n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Refetch(r.Context()); err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch events")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

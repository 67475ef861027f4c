// Package drag implements the pointer-driven move/resize state machine for
// the time grid: live preview while the primary button is held, a single
// commit request on release.
package drag

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"opscal/internal/layout"
	appLog "opscal/internal/log"
	"opscal/internal/model"
)

const (
	DefaultSnapMinutes      = 30
	DefaultMinResizeMinutes = 15

	// PrimaryButton is the bit for the primary button in Pointer.Buttons.
	PrimaryButton = 1
)

type Mode string

const (
	ModeMove   Mode = "move"
	ModeResize Mode = "resize"
)

// Target is the part of an event box the pointer went down on.
type Target string

const (
	TargetBody   Target = "body"
	TargetHandle Target = "handle" // bottom-edge resize handle
)

// Pointer is one pointer sample. Buttons is the pressed-button bitmask at
// the time of the sample; it is an explicit input so the controller never
// reads ambient device state.
type Pointer struct {
	Y       float64 `json:"y"`
	Buttons int     `json:"buttons"`
}

func (p Pointer) primaryHeld() bool {
	return p.Buttons&PrimaryButton != 0
}

// Config tunes the controller. Grid must be the same scale the layout
// engine renders with so row height and drag sensitivity stay coupled.
type Config struct {
	Grid             layout.Grid
	SnapMinutes      int
	MinResizeMinutes int
}

func (c Config) normalized() Config {
	if c.SnapMinutes <= 0 {
		c.SnapMinutes = DefaultSnapMinutes
	}
	if c.MinResizeMinutes <= 0 {
		c.MinResizeMinutes = DefaultMinResizeMinutes
	}
	return c
}

// Session is the state of the single in-progress gesture.
type Session struct {
	EventID  string     `json:"event_id"`
	Mode     Mode       `json:"mode"`
	OriginY  float64    `json:"origin_y"`
	Original model.Span `json:"original"`
	Version  string     `json:"-"`
	// Moved is set once any non-zero snapped delta was seen.
	Moved bool `json:"moved"`
}

// CommitRequest asks the event store to persist a previewed span.
type CommitRequest struct {
	ID       string
	EventID  string
	Span     model.Span
	Original model.Span
	Version  string
}

// Controller owns at most one Session at a time and writes previews into
// the shared PreviewMap.
type Controller struct {
	cfg      Config
	previews *layout.PreviewMap

	mu       sync.Mutex
	session  *Session
	suppress map[string]bool
}

// NewController builds a controller writing into previews.
func NewController(cfg Config, previews *layout.PreviewMap) *Controller {
	if previews == nil {
		previews = layout.NewPreviewMap()
	}
	return &Controller{
		cfg:      cfg.normalized(),
		previews: previews,
		suppress: make(map[string]bool),
	}
}

// Previews returns the map the layout engine should read.
func (c *Controller) Previews() *layout.PreviewMap {
	return c.previews
}

// Active returns a copy of the current session, if any.
func (c *Controller) Active() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// PointerDown starts a session. It is a no-op (false) when a session is
// already active, the primary button is not pressed, or ev is recurring or
// read-only.
func (c *Controller) PointerDown(ev model.Event, target Target, p Pointer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		appLog.Debug("drag: pointer-down ignored, session active", "active", c.session.EventID, "event_id", ev.ID)
		return false
	}
	if !p.primaryHeld() || !ev.Draggable() {
		return false
	}

	mode := ModeMove
	if target == TargetHandle {
		mode = ModeResize
	}
	// A flag left by an earlier gesture that was never followed by a click
	// must not swallow the click of this one.
	delete(c.suppress, ev.ID)
	c.session = &Session{
		EventID:  ev.ID,
		Mode:     mode,
		OriginY:  p.Y,
		Original: ev.Span(),
		Version:  ev.Version,
	}
	appLog.Debug("drag: session started", "event_id", ev.ID, "mode", mode)
	return true
}

// PointerMove recomputes the preview. Samples without an active session or
// without the primary button held are ignored.
func (c *Controller) PointerMove(p Pointer) (model.Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || !p.primaryHeld() {
		return model.Span{}, false
	}

	deltaMinutes := (p.Y - s.OriginY) / c.cfg.Grid.PixelsPerMinute()
	snapped := Snap(deltaMinutes, c.cfg.SnapMinutes)
	if snapped != 0 {
		s.Moved = true
	}
	if !s.Moved {
		return model.Span{}, false
	}

	span := c.candidate(s, snapped)
	c.previews.Set(s.EventID, span)
	return span, true
}

func (c *Controller) candidate(s *Session, snappedMinutes int) model.Span {
	delta := time.Duration(snappedMinutes) * time.Minute
	if s.Mode == ModeMove {
		return model.Span{Start: s.Original.Start.Add(delta), End: s.Original.End.Add(delta)}
	}

	end := s.Original.End.Add(delta)
	floor := time.Duration(c.cfg.MinResizeMinutes) * time.Minute
	if end.Sub(s.Original.Start) < floor {
		end = s.Original.Start.Add(floor)
	}
	return model.Span{Start: s.Original.Start, End: end}
}

// PointerUp ends the session. The session and its preview are cleared
// before returning; a CommitRequest is returned only if a preview existed.
func (c *Controller) PointerUp() (CommitRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return CommitRequest{}, false
	}
	c.session = nil

	preview, ok := c.previews.Preview(s.EventID)
	c.previews.Delete(s.EventID)
	if s.Moved {
		c.suppress[s.EventID] = true
	}
	if !ok {
		appLog.Debug("drag: session ended without movement", "event_id", s.EventID)
		return CommitRequest{}, false
	}

	return CommitRequest{
		ID:       uuid.NewString(),
		EventID:  s.EventID,
		Span:     preview,
		Original: s.Original,
		Version:  s.Version,
	}, true
}

// PointerLeave is treated exactly like PointerUp: leaving the grid commits.
func (c *Controller) PointerLeave() (CommitRequest, bool) {
	return c.PointerUp()
}

// Click reports whether a click on eventID should open the editor. The
// first click after a drag that moved the event is swallowed.
func (c *Controller) Click(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suppress[eventID] {
		delete(c.suppress, eventID)
		return false
	}
	return true
}

// Snap rounds minutes to the nearest multiple of step, halves rounding up
// toward positive infinity.
func Snap(minutes float64, step int) int {
	if step <= 0 {
		step = DefaultSnapMinutes
	}
	return int(math.Floor(minutes/float64(step)+0.5)) * step
}

package model

import "time"

// CalendarRef describes a calendar owned by the external calendar directory.
// The engine never mutates it.
type CalendarRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	Owned    bool `json:"owned"`
	Visible  bool `json:"visible"`
	ReadOnly bool `json:"read_only,omitempty"` // e.g. ICS overlay feeds
}

// Event is a single concrete calendar event as delivered by the event store.
// Start and End are absolute instants; End > Start is expected but not
// guaranteed.
type Event struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone,omitempty"`

	AllDay    bool `json:"is_all_day"`
	Recurring bool `json:"is_recurring"`
	ReadOnly  bool `json:"read_only,omitempty"`

	Color string `json:"color,omitempty"`
	// Version is the optimistic concurrency token echoed back on updates.
	Version string `json:"version,omitempty"`
}

// Span returns the event's own time span.
func (e Event) Span() Span {
	return Span{Start: e.Start, End: e.End}
}

// Draggable reports whether the event may be moved or resized by pointer.
func (e Event) Draggable() bool {
	return !e.Recurring && !e.ReadOnly
}

// Span is a half-open time interval [Start, End).
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration of the span; negative for malformed spans.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps applies the half-open overlap test against [start, end).
func (s Span) Overlaps(start, end time.Time) bool {
	return s.End.After(start) && s.Start.Before(end)
}

// ViewData is what the event store returns for one view window.
type ViewData struct {
	Events    []Event       `json:"events"`
	Calendars []CalendarRef `json:"calendars"`
}

// Calendar looks up a calendar by id.
func (d ViewData) Calendar(id string) (CalendarRef, bool) {
	for _, c := range d.Calendars {
		if c.ID == id {
			return c, true
		}
	}
	return CalendarRef{}, false
}

// Event looks up an event by id.
func (d ViewData) Event(id string) (Event, bool) {
	for _, e := range d.Events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

package model

import "time"

// ViewKind selects how the calendar is presented.
type ViewKind string

const (
	ViewDay    ViewKind = "day"
	ViewWeek   ViewKind = "week"
	ViewMonth  ViewKind = "month"
	ViewYear   ViewKind = "year"
	ViewAgenda ViewKind = "agenda"
)

// ViewWindow is the concrete [Start, End) range displayed for a view.
// It is derived on demand and never persisted.
type ViewWindow struct {
	Kind  ViewKind  `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w ViewWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

package view

import (
	"time"

	appLog "opscal/internal/log"
	"opscal/internal/model"
)

// Navigator keeps the current view kind and anchor and applies the page
// level shortcuts (t, arrows, d/w/m/y/a) to them.
type Navigator struct {
	Kind   model.ViewKind
	Anchor time.Time
	// Now is injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// NewNavigator starts at kind anchored on the current instant.
func NewNavigator(kind model.ViewKind, now func() time.Time) *Navigator {
	if now == nil {
		now = time.Now
	}
	return &Navigator{Kind: kind, Anchor: now(), Now: now}
}

var kindKeys = map[string]model.ViewKind{
	"d": model.ViewDay,
	"w": model.ViewWeek,
	"m": model.ViewMonth,
	"y": model.ViewYear,
	"a": model.ViewAgenda,
}

// HandleKey applies a keyboard shortcut and reports whether it was recognised.
func (n *Navigator) HandleKey(key string) (bool, error) {
	switch key {
	case "t":
		n.Today()
		return true, nil
	case "ArrowLeft":
		return true, n.Step(Prev)
	case "ArrowRight":
		return true, n.Step(Next)
	}
	if k, ok := kindKeys[key]; ok {
		n.Kind = k
		return true, nil
	}
	appLog.Debug("navigator: ignoring key", "key", key)
	return false, nil
}

// Today resets the anchor to now regardless of the view kind.
func (n *Navigator) Today() {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	n.Anchor = now()
}

// Step moves the anchor one unit of the current kind.
func (n *Navigator) Step(dir Direction) error {
	next, err := Offset(n.Kind, n.Anchor, dir)
	if err != nil {
		return err
	}
	n.Anchor = next
	return nil
}

// Window resolves the current view window.
func (n *Navigator) Window() (model.ViewWindow, error) {
	return ResolveWindow(n.Kind, n.Anchor)
}

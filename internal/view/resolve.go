// Package view resolves a view kind and anchor date into the concrete date
// range shown on screen, and implements prev/next/today navigation.
//
// All calculations happen in the anchor's own location; callers convert the
// anchor into the display timezone first.
package view

import (
	"errors"
	"fmt"
	"time"

	"opscal/internal/model"
)

// ErrUnsupportedViewKind signals a caller/engine contract mismatch.
var ErrUnsupportedViewKind = errors.New("unsupported view kind")

// MonthGridCells is the fixed number of day cells in a month grid (6 weeks).
const MonthGridCells = 42

// Direction is the navigation step sign.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// ParseKind converts a query/config string into a ViewKind.
func ParseKind(s string) (model.ViewKind, error) {
	switch k := model.ViewKind(s); k {
	case model.ViewDay, model.ViewWeek, model.ViewMonth, model.ViewYear, model.ViewAgenda:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedViewKind, s)
}

// ResolveWindow computes the displayed range for kind around anchor.
//
//   - day:    [startOfDay, +1d)
//   - week:   [Monday, +7d)
//   - month:  the 42-cell grid starting on the Monday on/before the 1st
//   - agenda: the calendar month containing anchor
//   - year:   the union of the 12 month grids of YearWindows, so leading
//     and trailing cells of January and December are covered
func ResolveWindow(kind model.ViewKind, anchor time.Time) (model.ViewWindow, error) {
	var start, end time.Time
	switch kind {
	case model.ViewDay:
		start = StartOfDay(anchor)
		end = start.AddDate(0, 0, 1)
	case model.ViewWeek:
		start = StartOfWeek(anchor)
		end = start.AddDate(0, 0, 7)
	case model.ViewMonth:
		start = StartOfWeek(startOfMonth(anchor))
		end = start.AddDate(0, 0, MonthGridCells)
	case model.ViewAgenda:
		m := MonthRange(anchor)
		start, end = m.Start, m.End
	case model.ViewYear:
		months := YearWindows(anchor)
		start, end = months[0].Start, months[len(months)-1].End
	default:
		return model.ViewWindow{}, fmt.Errorf("resolve window: %w: %q", ErrUnsupportedViewKind, kind)
	}
	return model.ViewWindow{Kind: kind, Start: start, End: end}, nil
}

// MustResolveWindow is ResolveWindow for call sites where kind is a constant.
func MustResolveWindow(kind model.ViewKind, anchor time.Time) model.ViewWindow {
	w, err := ResolveWindow(kind, anchor)
	if err != nil {
		panic(err)
	}
	return w
}

// MonthRange is the calendar month containing anchor, used for titles.
func MonthRange(anchor time.Time) model.ViewWindow {
	start := startOfMonth(anchor)
	return model.ViewWindow{Kind: model.ViewMonth, Start: start, End: start.AddDate(0, 1, 0)}
}

// YearWindows returns the 12 month-grid windows of anchor's year.
func YearWindows(anchor time.Time) []model.ViewWindow {
	out := make([]model.ViewWindow, 0, 12)
	for m := time.January; m <= time.December; m++ {
		first := time.Date(anchor.Year(), m, 1, 0, 0, 0, 0, anchor.Location())
		out = append(out, MustResolveWindow(model.ViewMonth, first))
	}
	return out
}

// Offset moves anchor one step in dir for the given view kind.
// Month and year steps keep the day-of-month, clamped to the target month's
// last day (Jan 31 + 1 month = Feb 28/29).
func Offset(kind model.ViewKind, anchor time.Time, dir Direction) (time.Time, error) {
	n := int(dir)
	switch kind {
	case model.ViewDay:
		return anchor.AddDate(0, 0, n), nil
	case model.ViewWeek, model.ViewAgenda:
		return anchor.AddDate(0, 0, 7*n), nil
	case model.ViewMonth:
		return addMonthsClamped(anchor, n), nil
	case model.ViewYear:
		return addMonthsClamped(anchor, 12*n), nil
	}
	return time.Time{}, fmt.Errorf("offset: %w: %q", ErrUnsupportedViewKind, kind)
}

// DayWindows splits w into consecutive calendar-day windows.
func DayWindows(w model.ViewWindow) []model.ViewWindow {
	var out []model.ViewWindow
	for d := StartOfDay(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		out = append(out, model.ViewWindow{Kind: model.ViewDay, Start: d, End: d.AddDate(0, 0, 1)})
	}
	return out
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	d := StartOfDay(t)
	back := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -back)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	last := daysIn(target.Year(), target.Month(), t.Location())
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

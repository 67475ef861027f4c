package layout

import (
	"sort"
	"time"

	"opscal/internal/model"
)

// dayKeyLayout formats the key used for day buckets.
const dayKeyLayout = "2006-01-02"

// DayKey is the bucket key for the day starting at t.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// BucketByDay assigns each event to every day cell it overlaps using the
// half-open test end > dayStart && start < dayEnd. Input order is kept
// inside each bucket. Every day gets a key, even when empty.
func BucketByDay(events []model.Event, days []model.ViewWindow) map[string][]model.Event {
	out := make(map[string][]model.Event, len(days))
	for _, d := range days {
		key := DayKey(d.Start)
		bucket := out[key]
		for _, ev := range events {
			if ev.Span().Overlaps(d.Start, d.End) {
				bucket = append(bucket, ev)
			}
		}
		if bucket == nil {
			bucket = []model.Event{}
		}
		out[key] = bucket
	}
	return out
}

// Box is the vertical geometry of an event on a 24h axis, in percent of
// the day column.
type Box struct {
	TopPercent    float64 `json:"top_percent"`
	HeightPercent float64 `json:"height_percent"`
}

// Layout computes ev's box inside day. A non-nil preview replaces the
// event's own span. Spans with no positive duration after clamping render
// with g.MinVisualMinutes; ev itself is never modified.
func (g Grid) Layout(ev model.Event, day model.ViewWindow, preview *model.Span) Box {
	startMinutes, durationMinutes := g.minutes(ev, day, preview)
	return Box{
		TopPercent:    startMinutes / MinutesPerDay * 100,
		HeightPercent: durationMinutes / MinutesPerDay * 100,
	}
}

// minutes returns the clamped offset from day start and the visual duration.
func (g Grid) minutes(ev model.Event, day model.ViewWindow, preview *model.Span) (float64, float64) {
	g = g.normalized()

	span := ev.Span()
	if preview != nil {
		span = *preview
	}

	start, end := clamp(span, day)
	startMinutes := start.Sub(day.Start).Minutes()
	durationMinutes := end.Sub(start).Minutes()
	if durationMinutes <= 0 {
		durationMinutes = g.MinVisualMinutes
	}
	return startMinutes, durationMinutes
}

// Layout uses the default 48px/hour grid.
func Layout(ev model.Event, day model.ViewWindow, preview *model.Span) Box {
	return DefaultGrid().Layout(ev, day, preview)
}

func clamp(s model.Span, day model.ViewWindow) (time.Time, time.Time) {
	start, end := s.Start, s.End
	if start.Before(day.Start) {
		start = day.Start
	}
	if end.After(day.End) {
		end = day.End
	}
	return start, end
}

// ResolveColor picks the event override, then the calendar's colour, then
// fallback.
func ResolveColor(ev model.Event, cal *model.CalendarRef, fallback string) string {
	if ev.Color != "" {
		return ev.Color
	}
	if cal != nil && cal.Color != "" {
		return cal.Color
	}
	if fallback == "" {
		return DefaultAccentColor
	}
	return fallback
}

// Truncate keeps the first limit events for a month/year cell and reports
// how many were hidden behind "+N more". The bucket itself is untouched.
func Truncate(events []model.Event, limit int) ([]model.Event, int) {
	if limit <= 0 {
		limit = DefaultCellLimit
	}
	if len(events) <= limit {
		return events, 0
	}
	return events[:limit], len(events) - limit
}

// SplitAllDay separates header-strip events from those on the time axis.
func SplitAllDay(events []model.Event) (allDay, timed []model.Event) {
	for _, ev := range events {
		if ev.AllDay {
			allDay = append(allDay, ev)
		} else {
			timed = append(timed, ev)
		}
	}
	return allDay, timed
}

// Agenda lists the events overlapping w ordered by start, then title.
func Agenda(events []model.Event, w model.ViewWindow) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Span().Overlaps(w.Start, w.End) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

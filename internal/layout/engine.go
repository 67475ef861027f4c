package layout

import (
	"sort"

	"opscal/internal/model"
)

// Placed is one rendered event box in a day column.
type Placed struct {
	Event model.Event `json:"event"`
	Box
	Color      string `json:"color"`
	Previewing bool   `json:"previewing"`

	// Column/Columns place overlapping boxes side by side.
	Column  int `json:"column"`
	Columns int `json:"columns"`
}

// Engine lays out a day column, reading live drag previews on every call.
type Engine struct {
	Grid         Grid
	Previews     PreviewReader
	DefaultColor string
}

// LayoutDay places timed events of one day cell. events is expected to be
// the day's bucket; all-day events are skipped.
func (e *Engine) LayoutDay(day model.ViewWindow, events []model.Event, calendars []model.CalendarRef) []Placed {
	cals := make(map[string]*model.CalendarRef, len(calendars))
	for i := range calendars {
		cals[calendars[i].ID] = &calendars[i]
	}

	out := make([]Placed, 0, len(events))
	spans := make([][2]float64, 0, len(events))
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		var preview *model.Span
		if e.Previews != nil {
			if s, ok := e.Previews.Preview(ev.ID); ok {
				preview = &s
			}
		}
		startMin, durMin := e.Grid.minutes(ev, day, preview)
		spans = append(spans, [2]float64{startMin, startMin + durMin})
		out = append(out, Placed{
			Event:      ev,
			Box:        e.Grid.Layout(ev, day, preview),
			Color:      ResolveColor(ev, cals[ev.CalendarID], e.DefaultColor),
			Previewing: preview != nil,
		})
	}
	assignColumns(out, spans)
	return out
}

type packed struct {
	p    Placed
	span [2]float64
}

// assignColumns sorts boxes by start minute and greedily packs overlapping
// ones into columns. spans[i] is the [start, end) minute range of ps[i].
// Boxes in one overlap cluster share the same Columns count.
func assignColumns(ps []Placed, spans [][2]float64) {
	items := make([]packed, len(ps))
	for i := range ps {
		items[i] = packed{p: ps[i], span: spans[i]}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].span[0] != items[j].span[0] {
			return items[i].span[0] < items[j].span[0]
		}
		return items[i].span[1] > items[j].span[1]
	})
	for i := range items {
		ps[i] = items[i].p
		spans[i] = items[i].span
	}

	clusterStart := 0
	clusterEnd := -1.0
	var colEnds []float64

	flush := func(until int) {
		for k := clusterStart; k < until; k++ {
			ps[k].Columns = len(colEnds)
		}
	}

	for i := range ps {
		top, bottom := spans[i][0], spans[i][1]
		if i > 0 && top >= clusterEnd {
			flush(i)
			clusterStart = i
			colEnds = colEnds[:0]
		}
		placed := false
		for c, end := range colEnds {
			if end <= top {
				colEnds[c] = bottom
				ps[i].Column = c
				placed = true
				break
			}
		}
		if !placed {
			ps[i].Column = len(colEnds)
			colEnds = append(colEnds, bottom)
		}
		if i == clusterStart || bottom > clusterEnd {
			clusterEnd = bottom
		}
	}
	flush(len(ps))
}

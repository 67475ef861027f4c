package view

import (
	"time"

	"opscal/internal/model"
)

// Cell is one day cell of a month grid.
type Cell struct {
	Day model.ViewWindow
	// InMonth is false for leading/trailing days borrowed from adjacent
	// months; those cells are rendered de-emphasized.
	InMonth bool
}

// MonthGrid returns the 42 cells of the month grid containing anchor.
func MonthGrid(anchor time.Time) []Cell {
	w := MustResolveWindow(model.ViewMonth, anchor)
	month := anchor.Month()
	days := DayWindows(w)
	cells := make([]Cell, 0, len(days))
	for _, d := range days {
		cells = append(cells, Cell{Day: d, InMonth: d.Start.Month() == month})
	}
	return cells
}

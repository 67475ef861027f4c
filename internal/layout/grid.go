// Package layout maps event time spans onto the day/week time grid and
// buckets events into day cells.
package layout

const (
	MinutesPerDay = 1440

	// DefaultPixelsPerHour is the row height of one hour. Drag sensitivity
	// is derived from the same value.
	DefaultPixelsPerHour = 48

	// DefaultMinVisualMinutes is the height given to degenerate events.
	DefaultMinVisualMinutes = 30

	// DefaultCellLimit caps events rendered per month/year cell.
	DefaultCellLimit = 3

	DefaultAccentColor = "#3b82f6"
)

// Grid is the vertical scale of the time axis.
type Grid struct {
	PixelsPerHour    float64
	MinVisualMinutes float64
}

// DefaultGrid returns the 48px/hour grid.
func DefaultGrid() Grid {
	return Grid{PixelsPerHour: DefaultPixelsPerHour, MinVisualMinutes: DefaultMinVisualMinutes}
}

func (g Grid) normalized() Grid {
	if g.PixelsPerHour <= 0 {
		g.PixelsPerHour = DefaultPixelsPerHour
	}
	if g.MinVisualMinutes <= 0 {
		g.MinVisualMinutes = DefaultMinVisualMinutes
	}
	return g
}

// PixelsPerMinute is the drag scale: 48px/hour gives 0.8px/min.
func (g Grid) PixelsPerMinute() float64 {
	return g.normalized().PixelsPerHour / 60
}

// DayHeight is the pixel height of a full 24h column.
func (g Grid) DayHeight() float64 {
	return g.normalized().PixelsPerHour * 24
}

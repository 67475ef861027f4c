package model

import (
	"testing"
	"time"
)

func TestSpanOverlapsHalfOpen(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	next := day.Add(24 * time.Hour)

	tests := []struct {
		name string
		span Span
		want bool
	}{
		{"inside", Span{day.Add(9 * time.Hour), day.Add(10 * time.Hour)}, true},
		{"ends at day start", Span{day.Add(-time.Hour), day}, false},
		{"starts at day end", Span{next, next.Add(time.Hour)}, false},
		{"zero length at day end", Span{next, next}, false},
		{"zero length inside", Span{day.Add(time.Hour), day.Add(time.Hour)}, true},
		{"covers whole day", Span{day.Add(-time.Hour), next.Add(time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.Overlaps(day, next); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDraggable(t *testing.T) {
	if !(Event{}).Draggable() {
		t.Fatal("plain event should be draggable")
	}
	if (Event{Recurring: true}).Draggable() {
		t.Fatal("recurring event must not be draggable")
	}
	if (Event{ReadOnly: true}).Draggable() {
		t.Fatal("read-only event must not be draggable")
	}
}

// Package source assembles the data for one view window: platform events
// from the REST API plus read-only ICS overlay calendars.
package source

import (
	"context"
	"time"

	"opscal/internal/ics"
	appLog "opscal/internal/log"
	"opscal/internal/model"
	"opscal/internal/view"
)

// ViewFetcher is the pull side of the event store.
type ViewFetcher interface {
	FetchViewData(ctx context.Context, kind model.ViewKind, anchor time.Time, calendarIDs []string) (model.ViewData, error)
}

// Aggregator merges API view data with overlay feeds. Either side may be
// absent. Nothing is cached across calls.
type Aggregator struct {
	API         ViewFetcher
	CalendarIDs []string

	Feeds   []ics.Source
	Fetcher *ics.Fetcher
}

// FetchViewData returns events and calendars for kind/anchor. An API error
// is returned; overlay feed errors are logged and the feed is skipped.
func (a *Aggregator) FetchViewData(ctx context.Context, kind model.ViewKind, anchor time.Time) (model.ViewData, error) {
	w, err := view.ResolveWindow(kind, anchor)
	if err != nil {
		return model.ViewData{}, err
	}

	data := model.ViewData{Events: []model.Event{}, Calendars: []model.CalendarRef{}}
	if a.API != nil {
		data, err = a.API.FetchViewData(ctx, kind, anchor, a.CalendarIDs)
		if err != nil {
			return model.ViewData{}, err
		}
	}

	for _, src := range a.Feeds {
		events, err := a.loadFeed(ctx, src)
		if err != nil {
			appLog.Error("source: overlay feed skipped", err, "id", src.ID)
			continue
		}
		data.Calendars = append(data.Calendars, model.CalendarRef{
			ID:       src.ID,
			Name:     src.Name,
			Color:    src.Color,
			Visible:  true,
			ReadOnly: true,
		})
		for _, ev := range events {
			if ev.Span().Overlaps(w.Start, w.End) {
				data.Events = append(data.Events, ev)
			}
		}
	}
	return data, nil
}

func (a *Aggregator) loadFeed(ctx context.Context, src ics.Source) ([]model.Event, error) {
	fetcher := a.Fetcher
	if fetcher == nil {
		fetcher = ics.NewFetcher(0)
	}
	body, _, err := fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return ics.Parse(src, body)
}

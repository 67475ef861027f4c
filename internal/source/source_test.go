package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opscal/internal/ics"
	"opscal/internal/model"
)

type stubAPI struct {
	data model.ViewData
	err  error
	got  []string
}

func (s *stubAPI) FetchViewData(_ context.Context, _ model.ViewKind, _ time.Time, ids []string) (model.ViewData, error) {
	s.got = ids
	return s.data, s.err
}

const feed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:in\r\nDTSTAMP:20250301T000000Z\r\nDTSTART:20250312T090000Z\r\nDTEND:20250312T100000Z\r\nSUMMARY:In window\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:out\r\nDTSTAMP:20250301T000000Z\r\nDTSTART:20250401T090000Z\r\nDTEND:20250401T100000Z\r\nSUMMARY:Later\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestAggregatorMergesOverlay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	api := &stubAPI{data: model.ViewData{
		Events:    []model.Event{{ID: "p1", CalendarID: "ops"}},
		Calendars: []model.CalendarRef{{ID: "ops"}},
	}}
	agg := &Aggregator{
		API:         api,
		CalendarIDs: []string{"ops"},
		Feeds: []ics.Source{
			{ID: "holidays", Name: "Holidays", URL: srv.URL, Color: "#aa0000"},
			{ID: "broken", URL: "http://127.0.0.1:0/unreachable.ics"},
		},
	}

	anchor := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	data, err := agg.FetchViewData(context.Background(), model.ViewWeek, anchor)
	if err != nil {
		t.Fatalf("FetchViewData: %v", err)
	}
	if len(api.got) != 1 || api.got[0] != "ops" {
		t.Fatalf("calendar filter not passed: %v", api.got)
	}
	if len(data.Events) != 2 {
		t.Fatalf("events = %+v, want platform event and one overlay event", data.Events)
	}
	cal, ok := data.Calendar("holidays")
	if !ok || !cal.ReadOnly || cal.Color != "#aa0000" {
		t.Fatalf("overlay calendar = %+v, %v", cal, ok)
	}
	if _, ok := data.Calendar("broken"); ok {
		t.Fatal("failed feed must not add a calendar")
	}
}

func TestAggregatorPropagatesAPIError(t *testing.T) {
	boom := errors.New("boom")
	agg := &Aggregator{API: &stubAPI{err: boom}}
	_, err := agg.FetchViewData(context.Background(), model.ViewDay, time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestAggregatorRejectsUnknownKind(t *testing.T) {
	agg := &Aggregator{}
	if _, err := agg.FetchViewData(context.Background(), "decade", time.Now()); err == nil {
		t.Fatal("expected unsupported kind error")
	}
}

const yearEdgeFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:lead\r\nDTSTAMP:20241201T000000Z\r\nDTSTART:20241230T100000Z\r\nDTEND:20241230T110000Z\r\nSUMMARY:Leading cell\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:before\r\nDTSTAMP:20241201T000000Z\r\nDTSTART:20241229T100000Z\r\nDTEND:20241229T110000Z\r\nSUMMARY:Not shown\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestAggregatorYearCoversGridCells(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(yearEdgeFeed))
	}))
	defer srv.Close()

	agg := &Aggregator{Feeds: []ics.Source{{ID: "feed", URL: srv.URL}}}
	anchor := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	data, err := agg.FetchViewData(context.Background(), model.ViewYear, anchor)
	if err != nil {
		t.Fatalf("FetchViewData: %v", err)
	}

	// January's grid starts on Monday 2024-12-30.
	if len(data.Events) != 1 || data.Events[0].ID != "feed:lead" {
		t.Fatalf("events = %+v, want only the Dec 30 event", data.Events)
	}
}

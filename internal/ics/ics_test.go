package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"opscal/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:launch-1\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250312T090000Z\r\n" +
	"DTEND:20250312T103000Z\r\n" +
	"SUMMARY:Launch review\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250310T080000Z\r\n" +
	"DTEND:20250310T081500Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"RECURRENCE-ID:20250311T080000Z\r\n" +
	"DTSTART:20250311T090000Z\r\n" +
	"DTEND:20250311T091500Z\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250314\r\n" +
	"SUMMARY:Holiday\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse(t *testing.T) {
	src := Source{ID: "feed", URL: "https://example.com/f.ics"}
	events, err := Parse(src, []byte(sampleICS))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3 (override dropped)", len(events))
	}

	byID := map[string]model.Event{}
	for _, ev := range events {
		byID[ev.ID] = ev
		if !ev.ReadOnly || ev.CalendarID != "feed" {
			t.Errorf("%s: overlay events must be read-only in calendar feed", ev.ID)
		}
	}

	launch := byID["feed:launch-1"]
	if launch.Title != "Launch review" || launch.Span().Duration() != 90*time.Minute || launch.Recurring {
		t.Errorf("launch = %+v", launch)
	}
	if !byID["feed:standup"].Recurring {
		t.Error("standup should be recurring")
	}
	holiday := byID["feed:holiday"]
	if !holiday.AllDay || holiday.Span().Duration() != 24*time.Hour {
		t.Errorf("holiday = %+v", holiday)
	}
}

func TestParseSkipsInvalidRRule(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:bad\r\nDTSTAMP:20250301T000000Z\r\nDTSTART:20250310T080000Z\r\n" +
		"DTEND:20250310T090000Z\r\nRRULE:FREQ=SOMETIMES\r\nSUMMARY:Broken\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:ok\r\nDTSTAMP:20250301T000000Z\r\nDTSTART:20250310T100000Z\r\n" +
		"DTEND:20250310T110000Z\r\nSUMMARY:Fine\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := Parse(Source{ID: "feed"}, []byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 1 || events[0].ID != "feed:ok" {
		t.Fatalf("events = %+v, want only feed:ok", events)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(Source{ID: "x"}, nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestExport(t *testing.T) {
	start := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	out := Export("Ops", []model.Event{{ID: "e1", Title: "Go/no-go", Start: start, End: start.Add(time.Hour)}}, start)

	for _, want := range []string{"BEGIN:VCALENDAR", "METHOD:PUBLISH", "UID:e1", "SUMMARY:Go/no-go", "DTSTART:20250312T090000Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}

	back, err := Parse(Source{ID: "rt"}, []byte(out))
	if err != nil || len(back) != 1 || !back[0].Start.Equal(start) {
		t.Fatalf("re-parse = %+v, %v", back, err)
	}
}

func TestFetcherConditionalAndFallback(t *testing.T) {
	var calls, fail int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	src := Source{ID: "feed", URL: srv.URL + "/secret-token.ics"}
	ctx := context.Background()

	body, cached, err := f.Fetch(ctx, src)
	if err != nil || cached || len(body) == 0 {
		t.Fatalf("first fetch: cached=%v err=%v", cached, err)
	}
	body, cached, err = f.Fetch(ctx, src)
	if err != nil || !cached || string(body) != sampleICS {
		t.Fatalf("second fetch should be a 304 cache hit: cached=%v err=%v", cached, err)
	}

	atomic.StoreInt32(&fail, 1)
	if _, cached, err = f.Fetch(ctx, src); err != nil || !cached {
		t.Fatalf("server error should fall back to cache: cached=%v err=%v", cached, err)
	}

	if _, _, err := NewFetcher(time.Second).Fetch(ctx, src); err == nil {
		t.Fatal("error without cache should propagate")
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://cal.example.com/private/abc.ics?token=1"); got != "https://cal.example.com/...(redacted)" {
		t.Fatalf("got %q", got)
	}
	if got := redactURL("nonsense"); got != "ics://...(redacted)" {
		t.Fatalf("got %q", got)
	}
}

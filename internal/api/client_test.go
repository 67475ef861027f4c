package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"opscal/internal/model"
)

func TestFetchViewData(t *testing.T) {
	anchor := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/views/week" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("anchor"); got != anchor.Format(time.RFC3339) {
			t.Errorf("anchor = %q", got)
		}
		if got := r.URL.Query().Get("calendar_ids"); got != "ops,launch" {
			t.Errorf("calendar_ids = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		_ = json.NewEncoder(w).Encode(model.ViewData{
			Events:    []model.Event{{ID: "e1", Title: "Launch", Start: anchor, End: anchor.Add(time.Hour)}},
			Calendars: []model.CalendarRef{{ID: "ops", Color: "#ff0000"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "secret", time.Second)
	data, err := c.FetchViewData(context.Background(), model.ViewWeek, anchor, []string{"ops", "launch"})
	if err != nil {
		t.Fatalf("FetchViewData: %v", err)
	}
	if len(data.Events) != 1 || data.Events[0].Title != "Launch" || len(data.Calendars) != 1 {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestUpdateEventTimeSendsVersion(t *testing.T) {
	start := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/events/e%201/time" && r.URL.Path != "/events/e 1/time" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("If-Match"); got != "v7" {
			t.Errorf("If-Match = %q, want v7", got)
		}
		var body timeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(model.Event{ID: "e 1", Start: body.Start, End: body.End, Version: "v8"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ev, err := c.UpdateEventTime(context.Background(), "e 1", model.Span{Start: start, End: start.Add(time.Hour)}, "v7")
	if err != nil {
		t.Fatalf("UpdateEventTime: %v", err)
	}
	if ev.Version != "v8" || !ev.Start.Equal(start) {
		t.Fatalf("got %+v", ev)
	}
}

func TestStatusErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusPreconditionFailed, ErrConflict},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}))
		c := NewClient(srv.URL, "", time.Second)
		err := c.DeleteEvent(context.Background(), "e1", "v1")
		srv.Close()

		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.code, err, tt.want)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Message != "nope" {
			t.Errorf("status %d: want StatusError with message, got %v", tt.code, err)
		}
	}
}

func TestCircuitOpensOnServerErrorsOnly(t *testing.T) {
	var hits int32
	var code atomic.Int32
	code.Store(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()
	p := EventPayload{Title: "x"}

	for i := 0; i < 6; i++ {
		if _, err := c.CreateEvent(ctx, p); errors.Is(err, ErrCircuitOpen) {
			t.Fatal("4xx responses must not open the circuit")
		}
	}

	code.Store(http.StatusBadGateway)
	for i := 0; i < 5; i++ {
		_, _ = c.CreateEvent(ctx, p)
	}
	before := atomic.LoadInt32(&hits)
	if _, err := c.CreateEvent(ctx, p); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if atomic.LoadInt32(&hits) != before {
		t.Fatal("open circuit must not reach the server")
	}
}

func TestUpdateAndCreateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p EventPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(model.Event{ID: "new", Title: p.Title})
		case http.MethodPut:
			if r.Header.Get("If-Match") != "v2" {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			_ = json.NewEncoder(w).Encode(model.Event{ID: "e1", Title: p.Title})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	created, err := c.CreateEvent(context.Background(), EventPayload{Title: "Standup"})
	if err != nil || created.ID != "new" {
		t.Fatalf("create = %+v, %v", created, err)
	}
	if _, err := c.UpdateEvent(context.Background(), "e1", EventPayload{Title: "x"}, "v1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update err = %v, want ErrConflict", err)
	}
	updated, err := c.UpdateEvent(context.Background(), "e1", EventPayload{Title: "Retro"}, "v2")
	if err != nil || updated.Title != "Retro" {
		t.Fatalf("update = %+v, %v", updated, err)
	}
}

// Package api is the REST client for the platform's event store. It
// implements the view-data pull and the event mutation calls the grid and
// the edit dialog use.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	appLog "opscal/internal/log"
	"opscal/internal/model"
)

var (
	ErrNotFound    = errors.New("event not found")
	ErrConflict    = errors.New("event was modified concurrently")
	ErrCircuitOpen = errors.New("event api unavailable")
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Code)
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrConflict
	}
	return nil
}

// EventPayload is the writable part of an event used by create/update.
type EventPayload struct {
	CalendarID  string    `json:"calendar_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Timezone    string    `json:"timezone,omitempty"`
	AllDay      bool      `json:"is_all_day"`
	Color       string    `json:"color,omitempty"`
}

// Client talks to the event API. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewClient builds a client for baseURL (e.g. "https://ops.example.com/api/v1").
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        "event-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors (4xx) are answers, not outages.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			appLog.Warn("api: circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// FetchViewData pulls events and calendars for one view. calendarIDs may be
// empty for all calendars.
func (c *Client) FetchViewData(ctx context.Context, kind model.ViewKind, anchor time.Time, calendarIDs []string) (model.ViewData, error) {
	q := url.Values{}
	q.Set("anchor", anchor.Format(time.RFC3339))
	if len(calendarIDs) > 0 {
		q.Set("calendar_ids", strings.Join(calendarIDs, ","))
	}

	var out model.ViewData
	if err := c.do(ctx, http.MethodGet, "/views/"+url.PathEscape(string(kind)), q, nil, "", &out); err != nil {
		return model.ViewData{}, fmt.Errorf("fetch view data: %w", err)
	}
	if out.Events == nil {
		out.Events = []model.Event{}
	}
	if out.Calendars == nil {
		out.Calendars = []model.CalendarRef{}
	}
	return out, nil
}

type timeBody struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UpdateEventTime persists a new span. version, when set, is sent as
// If-Match so a concurrent edit yields ErrConflict.
func (c *Client) UpdateEventTime(ctx context.Context, eventID string, span model.Span, version string) (model.Event, error) {
	var out model.Event
	body := timeBody{Start: span.Start, End: span.End}
	if err := c.do(ctx, http.MethodPatch, eventPath(eventID)+"/time", nil, body, version, &out); err != nil {
		return model.Event{}, fmt.Errorf("update event time %s: %w", eventID, err)
	}
	return out, nil
}

func (c *Client) CreateEvent(ctx context.Context, p EventPayload) (model.Event, error) {
	var out model.Event
	if err := c.do(ctx, http.MethodPost, "/events", nil, p, "", &out); err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	return out, nil
}

func (c *Client) UpdateEvent(ctx context.Context, eventID string, p EventPayload, version string) (model.Event, error) {
	var out model.Event
	if err := c.do(ctx, http.MethodPut, eventPath(eventID), nil, p, version, &out); err != nil {
		return model.Event{}, fmt.Errorf("update event %s: %w", eventID, err)
	}
	return out, nil
}

func (c *Client) DeleteEvent(ctx context.Context, eventID, version string) error {
	if err := c.do(ctx, http.MethodDelete, eventPath(eventID), nil, nil, version, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

func eventPath(id string) string {
	return "/events/" + url.PathEscape(id)
}

// do runs one request through the circuit breaker and decodes a JSON body
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, version string, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, q, body, version, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, q url.Values, body any, version string, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if version != "" {
		req.Header.Set("If-Match", version)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	appLog.Debug("api request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(data))

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if envelope.Message != "" {
			msg = envelope.Message
		} else if envelope.Error != "" {
			msg = envelope.Error
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "opscal/internal/log"
	"opscal/internal/model"
)

// Raw property names; not every golang-ical release exports constants for them.
const (
	propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"
	propColor        ical.ComponentProperty = "COLOR"
)

// Parse converts an ICS payload into read-only events of src's calendar.
//
// Recurring VEVENTs are kept as their first instance with Recurring set;
// occurrences are not expanded. RECURRENCE-ID overrides are dropped for the
// same reason. A VEVENT whose RRULE does not parse is logged and skipped.
func Parse(src Source, body []byte) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, comp := range cal.Events() {
		if comp.GetProperty(propRecurrenceID) != nil {
			continue
		}
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (model.Event, error) {
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return model.Event{}, errors.New("missing UID")
	}

	ev := model.Event{
		ID:         src.ID + ":" + uid.Value,
		CalendarID: src.ID,
		ReadOnly:   true,
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(propColor); p != nil {
		ev.Color = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return model.Event{}, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtStart)
	if tz := dtStart.ICalParameters["TZID"]; len(tz) > 0 {
		ev.Timezone = tz[0]
	}

	var err error
	if ev.AllDay {
		ev.Start, err = ve.GetAllDayStartAt()
	} else {
		ev.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return model.Event{}, err
	}

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil && ev.AllDay:
		ev.End, err = ve.GetAllDayEndAt()
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		ev.End, err = ve.GetEndAt()
	case ev.AllDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	default:
		// No DTEND: a point in time, rendered with the minimum height.
		ev.End = ev.Start
	}
	if err != nil {
		return model.Event{}, err
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		if _, rerr := rrule.StrToRRule(p.Value); rerr != nil {
			return model.Event{}, fmt.Errorf("invalid RRULE %q: %w", p.Value, rerr)
		}
		ev.Recurring = true
	}

	return ev, nil
}

// isDateValue reports whether DTSTART carries a DATE (all-day) value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// Export serialises events into a PUBLISH calendar.
func Export(name string, events []model.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//opscal//grid export//EN")
	if name != "" {
		cal.SetName(name)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.ID)
		ve.SetDtStampTime(now.UTC())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.AllDay {
			ve.SetAllDayStartAt(e.Start)
			ve.SetAllDayEndAt(e.End)
		} else {
			ve.SetStartAt(e.Start)
			ve.SetEndAt(e.End)
		}
		if e.Color != "" {
			ve.SetProperty(propColor, e.Color)
		}
	}
	return cal.Serialize()
}

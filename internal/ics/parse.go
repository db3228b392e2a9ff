package ics

import (
	"bytes"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/pkg/errors"

	"calgrid/internal/dateutil"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// overrideIDLayout formats the RECURRENCE-ID of an overridden occurrence
// into its event id.
const overrideIDLayout = "20060102T1504"

var errMissingUID = errors.New("missing UID")

// vevent is one decoded VEVENT before overrides are folded into their
// recurring base.
type vevent struct {
	rec        model.Event
	uid        string
	recurrence time.Time
}

// Parse decodes an ICS payload into event records.
//
//   - UID becomes the id, prefixed with the source id so that feeds never
//     collide.
//   - DTSTART with VALUE=DATE (or without a time part) marks an all-day event.
//   - RRULE and EXDATE are kept on the record; the index expands them.
//   - A VEVENT carrying RECURRENCE-ID replaces one occurrence: it becomes a
//     standalone record and its original start is added to the base's
//     EXDATEs.
//   - Cancelled VEVENTs are dropped.
//
// A VEVENT that cannot be decoded is logged and skipped.
func Parse(src Source, body []byte) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, errors.Wrapf(err, "parse ics of %s", src.ID)
	}

	var (
		bases     []vevent
		overrides []vevent
	)
	for _, comp := range cal.Events() {
		if status := comp.GetProperty(ical.ComponentPropertyStatus); status != nil && strings.EqualFold(status.Value, "CANCELLED") {
			continue
		}
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		if !ev.recurrence.IsZero() {
			overrides = append(overrides, ev)
			continue
		}
		bases = append(bases, ev)
	}

	byUID := make(map[string]int, len(bases))
	for i, b := range bases {
		if b.rec.Recurring {
			byUID[b.uid] = i
		}
	}
	for _, o := range overrides {
		if i, ok := byUID[o.uid]; ok {
			bases[i].rec.ExDates = append(bases[i].rec.ExDates, o.recurrence)
		}
		o.rec.ID += "@" + o.recurrence.Format(overrideIDLayout)
		bases = append(bases, o)
	}

	out := make([]model.Event, 0, len(bases))
	for _, b := range bases {
		out = append(out, b.rec)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(out))
	return out, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (vevent, error) {
	var out vevent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, errMissingUID
	}
	out.uid = strings.TrimSpace(uidProp.Value)

	rec := model.Event{
		ID:       out.uid,
		Class:    src.Class,
		Schedule: src.Schedule,
	}
	if src.ID != "" {
		rec.ID = src.ID + "/" + out.uid
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		rec.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		rec.Content = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.Errorf("event %s has no DTSTART", out.uid)
	}
	rec.AllDay = isDate(dtStart)

	var err error
	if rec.AllDay {
		rec.Start, err = ve.GetAllDayStartAt()
	} else {
		rec.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return out, errors.Wrapf(err, "event %s DTSTART", out.uid)
	}

	if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
		if rec.AllDay {
			rec.End, err = ve.GetAllDayEndAt()
		} else {
			rec.End, err = ve.GetEndAt()
		}
		if err != nil {
			return out, errors.Wrapf(err, "event %s DTEND", out.uid)
		}
	}
	if rec.AllDay && src.Location != nil {
		rec.Start = dateIn(rec.Start, src.Location)
		if !rec.End.IsZero() {
			rec.End = dateIn(rec.End, src.Location)
		}
	}
	if rec.End.IsZero() {
		rec.End = rec.Start
		if rec.AllDay {
			rec.End = dateutil.NextDay(rec.Start)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rec.Recurring = true
		rec.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseICSTime(part, tzid(p, rec.Start.Location()))
			if err != nil {
				appLog.Warn("ics exdate ignored", "uid", out.uid, "value", part, "error", err)
				continue
			}
			rec.ExDates = append(rec.ExDates, t)
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, err := parseICSTime(p.Value, tzid(p, rec.Start.Location()))
		if err != nil {
			return out, errors.Wrapf(err, "event %s RECURRENCE-ID", out.uid)
		}
		out.recurrence = t
	}

	out.rec = rec
	return out, nil
}

// isDate reports whether a date property carries a date without time.
func isDate(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// dateIn keeps the calendar date of t and moves it to midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// tzid returns the zone named by the TZID parameter of p, or fallback.
func tzid(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	tzs, ok := p.ICalParameters["TZID"]
	if !ok || len(tzs) == 0 {
		return fallback
	}
	loc, err := time.LoadLocation(strings.Trim(tzs[0], `"`))
	if err != nil {
		return fallback
	}
	return loc
}

// parseICSTime parses the DATE and DATE-TIME forms used by EXDATE and
// RECURRENCE-ID. Floating and date-only values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// Package agenda implements dated time intervals and the set operations
// used to find free time: complement of busy intervals within windows and
// intersection of free-time sets.
package agenda

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FreeTime is the description carried by computed free intervals.
const FreeTime = "free time"

var (
	// ErrInverted is returned when an appointment would end before it begins.
	ErrInverted = errors.New("appointment ends before it begins")
	// ErrSpansDays is returned when begin and end fall on different dates.
	ErrSpansDays = errors.New("appointment spans more than one day")
)

// Appointment is a time interval confined to a single day.
// Begin and End are anchored on that day in Begin's location.
type Appointment struct {
	Begin       time.Time
	End         time.Time
	Description string
}

// New builds an appointment, truncating both bounds to the minute.
func New(begin, end time.Time, description string) (Appointment, error) {
	begin = begin.Truncate(time.Minute)
	end = end.Truncate(time.Minute).In(begin.Location())
	if end.Before(begin) {
		return Appointment{}, ErrInverted
	}
	if DateOf(begin) != DateOf(end) {
		return Appointment{}, ErrSpansDays
	}
	return Appointment{Begin: begin, End: end, Description: description}, nil
}

// On builds an appointment for date d between clocks begin and end in loc.
func On(d Date, begin, end Clock, loc *time.Location, description string) (Appointment, error) {
	if loc == nil {
		loc = time.UTC
	}
	return New(d.At(begin, loc), d.At(end, loc), description)
}

// Span splits [begin, end) into one appointment per day in loc.
// A piece that runs past midnight is clipped to the last minute of its day.
func Span(begin, end time.Time, loc *time.Location, description string) []Appointment {
	if loc == nil {
		loc = time.UTC
	}
	begin = begin.In(loc).Truncate(time.Minute)
	end = end.In(loc).Truncate(time.Minute)

	var out []Appointment
	for cur := begin; cur.Before(end); {
		next := DateOf(cur).AddDays(1).In(loc)
		pieceEnd := end
		if last := next.Add(-time.Minute); pieceEnd.After(last) {
			pieceEnd = last
		}
		if pieceEnd.After(cur) {
			out = append(out, Appointment{Begin: cur, End: pieceEnd, Description: description})
		}
		cur = next
	}
	return out
}

// Date returns the calendar day the appointment belongs to.
func (a Appointment) Date() Date {
	return DateOf(a.Begin)
}

// Duration returns End - Begin.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Begin)
}

// IsFree reports whether the appointment is a free-time interval.
func (a Appointment) IsFree() bool {
	return a.Description == FreeTime
}

// Overlaps reports whether a and o share a non-empty interval on the same date.
// Intervals that only touch do not overlap.
func (a Appointment) Overlaps(o Appointment) bool {
	if a.Date() != o.Date() {
		return false
	}
	return latest(a.Begin, o.Begin).Before(earliest(a.End, o.End))
}

// Equal reports whether a and o cover the same instants with the same description.
func (a Appointment) Equal(o Appointment) bool {
	return a.Begin.Equal(o.Begin) && a.End.Equal(o.End) && a.Description == o.Description
}

// WithDescription returns a copy of a carrying description.
func (a Appointment) WithDescription(description string) Appointment {
	a.Description = description
	return a
}

// String renders the line encoding, e.g.
//
//	2016-12-11 10:00-08:00 11:00-08:00 | meeting
func (a Appointment) String() string {
	return fmt.Sprintf("%s %s %s | %s",
		a.Date(), a.Begin.Format(clockLayout), a.End.Format(clockLayout), a.Description)
}

// ParseError reports a malformed appointment encoding.
type ParseError struct {
	Input string
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agenda: parse %q: %s: %v", e.Input, e.Msg, e.Err)
	}
	return fmt.Sprintf("agenda: parse %q: %s", e.Input, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine parses the encoding produced by Appointment.String. The
// description follows the first '|'; without a delimiter everything after the
// third whitespace-separated field is the description.
func ParseLine(line string) (Appointment, error) {
	var fields []string
	var description string
	if head, tail, ok := strings.Cut(line, "|"); ok {
		fields = strings.Fields(head)
		if len(fields) != 3 {
			return Appointment{}, &ParseError{Input: line, Msg: fmt.Sprintf("expected 3 fields before '|', got %d", len(fields))}
		}
		description = tail
	} else {
		fields = strings.Fields(line)
		if len(fields) < 3 {
			return Appointment{}, &ParseError{Input: line, Msg: fmt.Sprintf("expected at least 3 fields, got %d", len(fields))}
		}
		description = strings.Join(fields[3:], " ")
		fields = fields[:3]
	}
	return parseFields(line, fields[0], fields[1], fields[2], description)
}

func parseFields(input, date, begin, end, description string) (Appointment, error) {
	if _, err := ParseDate(date); err != nil {
		return Appointment{}, &ParseError{Input: input, Msg: "bad date", Err: err}
	}
	b, err := time.Parse(dateLayout+" "+clockLayout, date+" "+begin)
	if err != nil {
		return Appointment{}, &ParseError{Input: input, Msg: "bad begin time", Err: err}
	}
	e, err := time.Parse(dateLayout+" "+clockLayout, date+" "+end)
	if err != nil {
		return Appointment{}, &ParseError{Input: input, Msg: "bad end time", Err: err}
	}
	appt, err := New(b, e, strings.TrimSpace(description))
	if err != nil {
		return Appointment{}, &ParseError{Input: input, Msg: "bad interval", Err: err}
	}
	return appt, nil
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

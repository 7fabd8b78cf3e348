// Package timeparse interprets the dates, times and date ranges people type
// into forms ("9am", "1:30 pm", "12/11/2016 - 12/15/2016").
package timeparse

import (
	"fmt"
	"strings"
	"time"

	"meetme/internal/agenda"
)

// Accepted time-of-day layouts, tried in order against lower-cased input.
var clockLayouts = []string{
	"3pm",
	"3:04pm",
	"3:04 pm",
	"15:04",
	"3 pm",
}

const dateLayout = "01/02/2006"

// Clock interprets a time of day such as "10:00 am", "1:30pm", "13:30" or "9 am".
func Clock(text string) (agenda.Clock, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return agenda.ClockOf(t), nil
		}
	}
	return agenda.Clock{}, fmt.Errorf("time %q didn't match accepted formats 13:30 or 1:30pm", text)
}

// Date interprets a MM/DD/YYYY date.
func Date(text string) (agenda.Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(text))
	if err != nil {
		return agenda.Date{}, fmt.Errorf("date %q didn't fit expected format 12/31/2001: %w", text, err)
	}
	return agenda.DateOf(t), nil
}

// DateRange interprets "MM/DD/YYYY - MM/DD/YYYY".
func DateRange(text string) (first, last agenda.Date, err error) {
	parts := strings.Fields(text)
	if len(parts) != 3 || parts[1] != "-" {
		return first, last, fmt.Errorf("date range %q must look like 12/01/2016 - 12/31/2016", text)
	}
	if first, err = Date(parts[0]); err != nil {
		return first, last, err
	}
	if last, err = Date(parts[2]); err != nil {
		return first, last, err
	}
	if last.Before(first) {
		return first, last, fmt.Errorf("date range %q ends before it starts", text)
	}
	return first, last, nil
}

// Window combines a date range and a daily begin/end time into a validated window.
func Window(daterange, begin, end string, loc *time.Location) (agenda.Window, error) {
	first, last, err := DateRange(daterange)
	if err != nil {
		return agenda.Window{}, err
	}
	b, err := Clock(begin)
	if err != nil {
		return agenda.Window{}, err
	}
	e, err := Clock(end)
	if err != nil {
		return agenda.Window{}, err
	}
	w := agenda.Window{First: first, Last: last, Begin: b, End: e, Location: loc}
	if err := w.Validate(); err != nil {
		return agenda.Window{}, err
	}
	return w, nil
}

// DefaultWindow spans tomorrow through one week from now, 9am to 5pm.
func DefaultWindow(now time.Time, loc *time.Location) agenda.Window {
	if loc == nil {
		loc = time.UTC
	}
	today := agenda.DateOf(now.In(loc))
	return agenda.Window{
		First:    today.AddDays(1),
		Last:     today.AddDays(7),
		Begin:    agenda.Clock{Hour: 9},
		End:      agenda.Clock{Hour: 17},
		Location: loc,
	}
}

// FormatRange renders a window's dates the way DateRange reads them.
func FormatRange(w agenda.Window) string {
	return fmt.Sprintf("%s - %s", w.First.In(time.UTC).Format(dateLayout), w.Last.In(time.UTC).Format(dateLayout))
}

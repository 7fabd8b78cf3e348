package agenda

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for windows whose dates or clocks are reversed,
// or whose dates span more than MaxWindowDays.
var ErrInvalidWindow = errors.New("invalid window")

// MaxWindowDays bounds the number of dates in a window.
const MaxWindowDays = 90

// Window is the same daily time range repeated over a span of dates.
type Window struct {
	First    Date
	Last     Date
	Begin    Clock
	End      Clock
	Location *time.Location
}

// Validate checks that the window covers between one and MaxWindowDays dates and
// a positive daily range.
func (w Window) Validate() error {
	if w.First.IsZero() || w.Last.IsZero() {
		return fmt.Errorf("%w: missing dates", ErrInvalidWindow)
	}
	if w.Last.Before(w.First) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidWindow, w.Last, w.First)
	}
	if w.Last.After(w.First.AddDays(MaxWindowDays - 1)) {
		return fmt.Errorf("%w: %s - %s spans more than %d days", ErrInvalidWindow, w.First, w.Last, MaxWindowDays)
	}
	if w.End.Minutes() <= w.Begin.Minutes() {
		return fmt.Errorf("%w: %s is not after %s", ErrInvalidWindow, w.End, w.Begin)
	}
	return nil
}

// Loc returns the window's location, defaulting to UTC.
func (w Window) Loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// Contains reports whether d is one of the window's dates.
func (w Window) Contains(d Date) bool {
	return !d.Before(w.First) && !d.After(w.Last)
}

// Bounds returns the half-open instant range [First 00:00, Last+1 00:00).
func (w Window) Bounds() (from, to time.Time) {
	return w.First.In(w.Loc()), w.Last.AddDays(1).In(w.Loc())
}

// Agenda expands the window into one FreeTime appointment per date.
func (w Window) Agenda() (*Agenda, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	out := &Agenda{}
	for d := w.First; !d.After(w.Last); d = d.AddDays(1) {
		appt, err := On(d, w.Begin, w.End, w.Loc(), FreeTime)
		if err != nil {
			return nil, err
		}
		out.Append(appt)
	}
	return out, nil
}

type windowJSON struct {
	First    Date   `json:"first"`
	Last     Date   `json:"last"`
	Begin    Clock  `json:"begin"`
	End      Clock  `json:"end"`
	Timezone string `json:"timezone"`
}

// MarshalJSON encodes the location by name.
func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{
		First:    w.First,
		Last:     w.Last,
		Begin:    w.Begin,
		End:      w.End,
		Timezone: w.Loc().String(),
	})
}

// UnmarshalJSON decodes a window, loading its location by name.
func (w *Window) UnmarshalJSON(b []byte) error {
	var raw windowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	loc := time.UTC
	if raw.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(raw.Timezone); err != nil {
			return fmt.Errorf("load timezone %q: %w", raw.Timezone, err)
		}
	}
	*w = Window{First: raw.First, Last: raw.Last, Begin: raw.Begin, End: raw.End, Location: loc}
	return nil
}

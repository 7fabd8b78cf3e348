package agenda

import (
	"slices"
	"strings"
)

// Agenda is an unordered collection of appointments. Operations sort on
// demand; the zero value and a nil *Agenda are both empty.
type Agenda struct {
	appts []Appointment
}

// NewAgenda returns an agenda holding appts.
func NewAgenda(appts ...Appointment) *Agenda {
	return &Agenda{appts: slices.Clone(appts)}
}

// Append adds appt without deduplication.
func (a *Agenda) Append(appt Appointment) {
	a.appts = append(a.appts, appt)
}

// Len returns the number of appointments.
func (a *Agenda) Len() int {
	if a == nil {
		return 0
	}
	return len(a.appts)
}

// Sorted returns a copy of the appointments ordered by date, begin, end and description.
func (a *Agenda) Sorted() []Appointment {
	out := slices.Clone(a.items())
	slices.SortStableFunc(out, compareAppointments)
	return out
}

// Dates returns the distinct dates present, ascending.
func (a *Agenda) Dates() []Date {
	var dates []Date
	for _, appt := range a.Sorted() {
		if d := appt.Date(); len(dates) == 0 || dates[len(dates)-1] != d {
			dates = append(dates, d)
		}
	}
	return dates
}

// Filter returns a new agenda with the appointments keep accepts.
func (a *Agenda) Filter(keep func(Appointment) bool) *Agenda {
	out := &Agenda{}
	for _, appt := range a.items() {
		if keep(appt) {
			out.appts = append(out.appts, appt)
		}
	}
	return out
}

// Complement treats a as busy intervals and windows as the candidate windows,
// and returns the parts of each window not covered by a busy interval on the
// same date. Every result is described as FreeTime.
func (a *Agenda) Complement(windows *Agenda) *Agenda {
	busy := a.byDate()
	out := &Agenda{}
	for _, w := range windows.Sorted() {
		loc := w.Begin.Location()
		cursor := w.Begin
		for _, b := range busy[w.Date()] {
			if !b.End.After(cursor) {
				continue
			}
			if !b.Begin.Before(w.End) {
				break
			}
			if b.Begin.After(cursor) {
				out.Append(Appointment{Begin: cursor, End: b.Begin.In(loc), Description: FreeTime})
			}
			cursor = b.End.In(loc)
		}
		if cursor.Before(w.End) {
			out.Append(Appointment{Begin: cursor, End: w.End, Description: FreeTime})
		}
	}
	return out
}

// Intersect returns, for each date common to a and other, the non-empty
// overlaps of every pair of intervals on that date, described as FreeTime.
func (a *Agenda) Intersect(other *Agenda) *Agenda {
	theirs := other.byDate()
	out := &Agenda{}
	for _, x := range a.Sorted() {
		loc := x.Begin.Location()
		for _, y := range theirs[x.Date()] {
			lo, hi := latest(x.Begin, y.Begin), earliest(x.End, y.End)
			if lo.Before(hi) {
				out.Append(Appointment{Begin: lo.In(loc), End: hi.In(loc), Description: FreeTime})
			}
		}
	}
	return out
}

// Merge coalesces overlapping or touching intervals on the same date. A merged
// interval keeps its description only when every member shares it and is
// otherwise described as FreeTime, so Merge is meant for free agendas: merged
// busy intervals with different descriptions would read as free.
func (a *Agenda) Merge() *Agenda {
	out := &Agenda{}
	for _, x := range a.Sorted() {
		if n := len(out.appts); n > 0 {
			last := &out.appts[n-1]
			if last.Date() == x.Date() && !x.Begin.After(last.End) {
				if x.End.After(last.End) {
					last.End = x.End.In(last.Begin.Location())
				}
				if last.Description != x.Description {
					last.Description = FreeTime
				}
				continue
			}
		}
		out.appts = append(out.appts, x)
	}
	return out
}

// Lines returns the sorted line encoding of every appointment.
func (a *Agenda) Lines() []string {
	sorted := a.Sorted()
	lines := make([]string, 0, len(sorted))
	for _, appt := range sorted {
		lines = append(lines, appt.String())
	}
	return lines
}

// ParseLines parses one appointment per line, skipping blank lines.
func ParseLines(lines []string) (*Agenda, error) {
	out := &Agenda{}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		appt, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		out.Append(appt)
	}
	return out, nil
}

func (a *Agenda) items() []Appointment {
	if a == nil {
		return nil
	}
	return a.appts
}

// byDate groups a sorted copy of the appointments by date.
func (a *Agenda) byDate() map[Date][]Appointment {
	groups := make(map[Date][]Appointment)
	for _, appt := range a.Sorted() {
		d := appt.Date()
		groups[d] = append(groups[d], appt)
	}
	return groups
}

func compareAppointments(x, y Appointment) int {
	if c := x.Date().Compare(y.Date()); c != 0 {
		return c
	}
	if c := x.Begin.Compare(y.Begin); c != 0 {
		return c
	}
	if c := x.End.Compare(y.End); c != 0 {
		return c
	}
	return strings.Compare(x.Description, y.Description)
}

package planner

import (
	"cmp"
	"slices"
	"strings"

	"meetme/internal/agenda"
)

// Entry is one line of a proposal offered for pruning.
type Entry struct {
	Index       int                `json:"index"`
	Appointment agenda.Appointment `json:"appointment"`
	Busy        bool               `json:"busy"`
	Text        string             `json:"text"`
}

// Proposal is the free and busy time of one person inside a window.
type Proposal struct {
	Window  agenda.Window  `json:"window"`
	Busy    *agenda.Agenda `json:"busy"`
	Free    *agenda.Agenda `json:"free"`
	Entries []Entry        `json:"entries"`
}

func newProposal(w agenda.Window, busy, free *agenda.Agenda) *Proposal {
	p := &Proposal{Window: w, Busy: busy, Free: free}
	for _, appt := range busy.Sorted() {
		p.Entries = append(p.Entries, Entry{Appointment: appt, Busy: true})
	}
	for _, appt := range free.Sorted() {
		p.Entries = append(p.Entries, Entry{Appointment: appt})
	}
	slices.SortStableFunc(p.Entries, func(x, y Entry) int {
		return cmp.Or(
			x.Appointment.Begin.Compare(y.Appointment.Begin),
			x.Appointment.End.Compare(y.Appointment.End),
			strings.Compare(x.Appointment.Description, y.Appointment.Description),
		)
	})
	for i := range p.Entries {
		p.Entries[i].Index = i
		p.Entries[i].Text = p.Entries[i].Appointment.String()
	}
	return p
}

// Selection returns the free time left after dropping the given entries. It is
// recomputed from the busy entries that were kept, so a dropped busy entry only
// frees the minutes no kept busy entry still covers. Dropped free entries are
// removed from the result.
func (p *Proposal) Selection(drop []int) (*agenda.Agenda, error) {
	dropped, err := dropSet(drop, len(p.Entries))
	if err != nil {
		return nil, err
	}
	windows, err := p.Window.Agenda()
	if err != nil {
		return nil, err
	}
	keptBusy, droppedFree := &agenda.Agenda{}, &agenda.Agenda{}
	for _, e := range p.Entries {
		switch {
		case e.Busy && !dropped[e.Index]:
			keptBusy.Append(e.Appointment)
		case !e.Busy && dropped[e.Index]:
			droppedFree.Append(e.Appointment)
		}
	}
	free := keptBusy.Complement(windows)
	return free.Intersect(droppedFree.Complement(windows)).Merge(), nil
}

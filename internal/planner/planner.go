// Package planner turns calendar events into proposals and shareable schedules.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetme/internal/agenda"
	"meetme/internal/models"
	"meetme/internal/store"
)

var (
	// ErrBadIndex is returned when a dropped entry index is out of range.
	ErrBadIndex = errors.New("entry index out of range")
	// ErrNoWindow is returned when no date/time window has been chosen.
	ErrNoWindow = errors.New("no date range chosen")
)

// Provider is a calendar source, such as Google Calendar or a CalDAV server.
type Provider interface {
	ListCalendars(ctx context.Context) ([]models.Calendar, error)
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Event, error)
}

// Planner computes proposals and maintains schedules in a store.
type Planner struct {
	logger *slog.Logger
	store  store.Store
	now    func() time.Time
	locks  *scheduleLocks
}

// New creates a Planner backed by st.
func New(logger *slog.Logger, st store.Store) *Planner {
	return &Planner{logger: logger, store: st, now: time.Now, locks: newScheduleLocks()}
}

// Propose reads the busy events of calendarIDs inside w and computes the free
// time left in each daily window.
func (p *Planner) Propose(ctx context.Context, provider Provider, calendarIDs []string, w agenda.Window) (*Proposal, error) {
	if w.First.IsZero() {
		return nil, ErrNoWindow
	}
	windows, err := w.Agenda()
	if err != nil {
		return nil, err
	}

	busy, err := p.fetchBusy(ctx, provider, calendarIDs, w)
	if err != nil {
		return nil, err
	}
	free := busy.Complement(windows)
	p.logger.Info("Computed proposal", "calendars", len(calendarIDs), "busy", busy.Len(), "free", free.Len())
	return newProposal(w, busy, free), nil
}

// fetchBusy collects the busy intervals of every calendar, split per day in the
// window's location and kept only when they overlap that day's window.
func (p *Planner) fetchBusy(ctx context.Context, provider Provider, calendarIDs []string, w agenda.Window) (*agenda.Agenda, error) {
	from, to := w.Bounds()
	loc := w.Loc()
	busy := &agenda.Agenda{}
	for _, calID := range calendarIDs {
		events, err := provider.ListEvents(ctx, calID, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events of calendar %s: %w", calID, err)
		}
		for _, ev := range events {
			for _, piece := range agenda.Span(ev.StartTime, ev.EndTime, loc, ev.Title) {
				d := piece.Date()
				if !w.Contains(d) {
					continue
				}
				day, err := agenda.On(d, w.Begin, w.End, loc, agenda.FreeTime)
				if err != nil {
					return nil, err
				}
				if piece.Overlaps(day) {
					busy.Append(piece)
				}
			}
		}
		p.logger.Debug("Fetched busy events", "calendarID", calID, "count", len(events))
	}
	return busy, nil
}

// Finalize keeps the proposal entries the maker did not drop and saves them as
// a new schedule. A dropped busy entry becomes free time.
func (p *Planner) Finalize(ctx context.Context, proposal *Proposal, drop []int) (*models.Schedule, error) {
	free, err := proposal.Selection(drop)
	if err != nil {
		return nil, err
	}
	now := p.now().UTC()
	sched := &models.Schedule{
		ID:           uuid.New(),
		Window:       proposal.Window,
		Free:         free,
		Participants: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.Upsert(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}
	p.logger.Info("Created schedule", "id", sched.ID, "free", free.Len())
	return sched, nil
}

// Get loads a schedule.
func (p *Planner) Get(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	return p.store.FindByID(ctx, id)
}

// Join narrows the schedule to the time that is also free in selection.
// Joins of the same schedule are serialized.
func (p *Planner) Join(ctx context.Context, id uuid.UUID, selection *agenda.Agenda) (*models.Schedule, error) {
	unlock := p.locks.lock(id)
	defer unlock()

	sched, err := p.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := sched.Free.Len()
	sched.Free = sched.Free.Intersect(selection).Merge()
	sched.Participants++
	sched.UpdatedAt = p.now().UTC()
	if err := p.store.Upsert(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}
	p.logger.Info("Joined schedule", "id", id, "participants", sched.Participants, "before", before, "after", sched.Free.Len())
	return sched, nil
}

// Purge deletes schedules whose window ended more than retention ago.
func (p *Planner) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := agenda.DateOf(p.now().Add(-retention))
	n, err := p.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logger.Info("Purged expired schedules", "before", cutoff, "count", n)
	return n, nil
}

// Selection returns the stored free entries of sched minus the dropped indices.
func Selection(sched *models.Schedule, drop []int) (*agenda.Agenda, error) {
	entries := sched.Free.Sorted()
	dropped, err := dropSet(drop, len(entries))
	if err != nil {
		return nil, err
	}
	out := &agenda.Agenda{}
	for i, appt := range entries {
		if !dropped[i] {
			out.Append(appt)
		}
	}
	return out, nil
}

func dropSet(drop []int, n int) (map[int]bool, error) {
	set := make(map[int]bool, len(drop))
	for _, i := range drop {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrBadIndex, i, n)
		}
		set[i] = true
	}
	return set, nil
}

// scheduleLocks hands out one mutex per schedule id, dropped when no caller holds it.
type scheduleLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newScheduleLocks() *scheduleLocks {
	return &scheduleLocks{locks: make(map[uuid.UUID]*refMutex)}
}

func (l *scheduleLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"meetme/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/teambition/rrule-go"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "meetme/1.0")
	return t.Transport.RoundTrip(req)
}

// Client reads calendars and busy events from a CalDAV server.
type Client struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	endpoint     string
	location     *time.Location
}

// NewClient creates a CalDAV client. Floating event times are read in loc.
func NewClient(logger *slog.Logger, endpoint, username, password string, loc *time.Location) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("caldav endpoint not configured")
	}
	if loc == nil {
		loc = time.UTC
	}
	httpClient := &http.Client{
		Transport: &customTransport{
			Username:  username,
			Password:  password,
			Transport: http.DefaultTransport,
		},
		Timeout: 30 * time.Second,
	}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Client{
		caldavClient: caldavClient,
		logger:       logger,
		endpoint:     endpoint,
		location:     loc,
	}, nil
}

// ListCalendars discovers the user's calendars. The calendar ID is its path on the server.
func (c *Client) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}

	cals, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}

	calendars := make([]models.Calendar, 0, len(cals))
	for i, cal := range cals {
		calendars = append(calendars, models.Calendar{
			ID:          cal.Path,
			Summary:     cal.Name,
			Description: cal.Description,
			Primary:     i == 0,
		})
	}
	c.logger.Debug("Discovered CalDAV calendars", "count", len(calendars), "endpoint", c.endpoint)
	return calendars, nil
}

// FindCalendar returns the path of the calendar whose display name is name.
func (c *Client) FindCalendar(ctx context.Context, name string) (string, error) {
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return "", err
	}
	for _, cal := range calendars {
		if cal.Summary == name {
			return cal.ID, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// ListEvents returns the busy events of the calendar at calendarPath in [from, to),
// with recurring events expanded.
func (c *Client) ListEvents(ctx context.Context, calendarPath string, from, to time.Time) ([]*models.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	var events []*models.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, eventsFromCalendar(c.logger, obj.Data, calendarPath, from, to, c.location)...)
	}
	c.logger.Info("Fetched events from CalDAV", "count", len(events), "calendar", calendarPath)
	return events, nil
}

// vevent is the subset of a VEVENT needed to compute busy time.
type vevent struct {
	uid          string
	summary      string
	start        time.Time
	end          time.Time
	rrule        string
	exdates      []time.Time
	recurrenceID time.Time
	transparent  bool
}

// eventsFromCalendar extracts the busy events overlapping [from, to) from one
// calendar object. Recurring events are expanded; overridden instances
// (RECURRENCE-ID) replace the generated ones.
func eventsFromCalendar(logger *slog.Logger, cal *ical.Calendar, calendarID string, from, to time.Time, loc *time.Location) []*models.Event {
	var masters, overrides []vevent
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, ok := parseEvent(comp, loc)
		if !ok {
			continue
		}
		if ev.recurrenceID.IsZero() {
			masters = append(masters, ev)
		} else {
			overrides = append(overrides, ev)
		}
	}

	var out []*models.Event
	emit := func(ev vevent, start, end time.Time) {
		if ev.transparent || !start.Before(to) || !end.After(from) {
			return
		}
		out = append(out, &models.Event{
			ID:         ev.uid + "@" + start.UTC().Format(time.RFC3339),
			Title:      ev.summary,
			StartTime:  start,
			EndTime:    end,
			CalendarID: calendarID,
			Source:     "caldav",
		})
	}

	for _, ev := range masters {
		if ev.rrule == "" {
			emit(ev, ev.start, ev.end)
			continue
		}
		starts, err := expand(ev, from, to)
		if err != nil {
			logger.Warn("Skipping event with bad recurrence rule", "uid", ev.uid, "rrule", ev.rrule, "error", err)
			continue
		}
		duration := ev.end.Sub(ev.start)
		for _, start := range starts {
			if hasOverride(ev.uid, start, overrides) {
				continue
			}
			emit(ev, start, start.Add(duration))
		}
	}
	for _, ev := range overrides {
		emit(ev, ev.start, ev.end)
	}
	return out
}

func parseEvent(comp *ical.Component, loc *time.Location) (vevent, bool) {
	var ev vevent
	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		ev.uid = prop.Value
	}
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		ev.summary = prop.Value
	}
	if prop := comp.Props.Get(ical.PropTransparency); prop != nil {
		ev.transparent = strings.EqualFold(prop.Value, "TRANSPARENT")
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return ev, false
	}
	// All-day events do not block a time range.
	if startProp.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
		return ev, false
	}
	start, err := startProp.DateTime(loc)
	if err != nil {
		return ev, false
	}
	ev.start = start

	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		end, err := comp.Props.Get(ical.PropDateTimeEnd).DateTime(loc)
		if err != nil {
			return ev, false
		}
		ev.end = end
	case comp.Props.Get(ical.PropDuration) != nil:
		d, err := comp.Props.Get(ical.PropDuration).Duration()
		if err != nil {
			return ev, false
		}
		ev.end = start.Add(d)
	default:
		ev.end = start
	}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		ev.rrule = prop.Value
	}
	if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
		if rid, err := prop.DateTime(loc); err == nil {
			ev.recurrenceID = rid
		}
	}
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		for _, value := range strings.Split(prop.Value, ",") {
			single := prop
			single.Value = value
			if t, err := single.DateTime(loc); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	return ev, true
}

// expand returns the occurrence starts of a recurring event that may overlap
// [from, to), with EXDATEs removed.
func expand(ev vevent, from, to time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(ev.rrule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = ev.start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}
	// Widen by the duration so occurrences that started before from are kept.
	return set.Between(from.Add(-ev.end.Sub(ev.start)), to, true), nil
}

func hasOverride(uid string, start time.Time, overrides []vevent) bool {
	for _, ov := range overrides {
		if ov.uid == uid && ov.recurrenceID.Equal(start) {
			return true
		}
	}
	return false
}

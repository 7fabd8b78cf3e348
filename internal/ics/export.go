// Package ics renders a schedule's free time as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"meetme/internal/models"
)

const productID = "-//meetme//EN"

// Calendar builds a VCALENDAR with one VEVENT per free appointment of sched.
// Event UIDs are derived from the schedule ID and the appointment, so
// re-exporting an unchanged schedule yields the same UIDs.
func Calendar(sched *models.Schedule, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", fmt.Sprintf("meetme %s", sched.ID))

	for _, appt := range sched.Free.Sorted() {
		event := ical.NewEvent()
		uid := uuid.NewSHA1(sched.ID, []byte(appt.String()))
		event.Props.SetText(ical.PropUID, uid.String()+"@meetme")
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		event.Props.SetDateTime(ical.PropDateTimeStart, appt.Begin.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, appt.End.UTC())
		event.Props.SetText(ical.PropSummary, appt.Description)
		event.Props.SetText(ical.PropTransparency, "TRANSPARENT")
		cal.Children = append(cal.Children, event.Component)
	}
	return cal
}

// Write encodes sched as iCalendar to w.
func Write(w io.Writer, sched *models.Schedule, stamp time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(sched, stamp)); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

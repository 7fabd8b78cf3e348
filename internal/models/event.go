package models

import "time"

// Event represents a busy block read from a calendar provider. Providers drop
// transparent events, so every Event blocks time.
type Event struct {
	ID         string    // Unique identifier for the event (e.g., from the source calendar)
	Title      string    // Summary or title of the event
	StartTime  time.Time // Start time of the event
	EndTime    time.Time // End time of the event
	CalendarID string    // Calendar the event was read from
	Source     string    // The source of the event (e.g., "google", "caldav")
}

// Package store persists schedules.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"meetme/internal/agenda"
	"meetme/internal/models"
)

// ErrNotFound is returned when no schedule has the requested ID.
var ErrNotFound = errors.New("schedule not found")

// Store is the persistence boundary for schedules.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	// Upsert inserts the schedule or replaces the one with the same ID.
	Upsert(ctx context.Context, sched *models.Schedule) error
	// DeleteExpired removes schedules whose last window date is before the
	// given date and returns how many were removed.
	DeleteExpired(ctx context.Context, before agenda.Date) (int64, error)
	Close() error
}

package models

import (
	"time"

	"github.com/google/uuid"

	"meetme/internal/agenda"
)

// Schedule is a shareable free-time agenda. Invitees narrow it by joining.
type Schedule struct {
	ID           uuid.UUID      `json:"id"`
	Window       agenda.Window  `json:"window"`
	Free         *agenda.Agenda `json:"free"`
	Participants int            `json:"participants"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

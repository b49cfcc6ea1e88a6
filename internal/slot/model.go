package slot

import (
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateFree   State = "free"
	StateHeld   State = "held"
	StateBooked State = "booked"
)

type VisitType string

const (
	VisitInPerson VisitType = "in_person"
	VisitRemote   VisitType = "remote"
)

// Slot is one materialized bookable interval, half open [Start, End).
// HeldBy/HoldExpiresAt are set only while held, AppointmentID only
// while booked. Slots are never deleted; a cancelled booking returns
// the slot to free under the same identity.
type Slot struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	Start         time.Time
	End           time.Time
	VisitType     VisitType
	State         State
	HeldBy        *uuid.UUID
	HoldExpiresAt *time.Time
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AvailableAt reports whether the slot can be taken at the given
// instant. A held slot whose hold has lapsed is logically free even
// before the sweep reclaims it.
func (s *Slot) AvailableAt(now time.Time) bool {
	switch s.State {
	case StateFree:
		return true
	case StateHeld:
		return s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now)
	default:
		return false
	}
}

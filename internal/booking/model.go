package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/scheduling/internal/slot"
)

type Status string

const (
	StatusRequested   Status = "requested"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
)

// Terminal reports whether the status admits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Appointment struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	PatientID          uuid.UUID
	SlotID             uuid.UUID
	Start              time.Time
	End                time.Time
	VisitType          slot.VisitType
	Status             Status
	Reason             string
	Notes              string
	Location           string
	MeetingLink        string
	CancellationReason string
	IdempotencyKey     *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HistoryEntry is one row of the append-only audit trail. The slot and
// start columns are populated only for reschedules.
type HistoryEntry struct {
	ID            int64
	AppointmentID uuid.UUID
	Status        Status
	ActorID       uuid.UUID
	Note          string
	OldSlotID     *uuid.UUID
	NewSlotID     *uuid.UUID
	OldStart      *time.Time
	NewStart      *time.Time
	CreatedAt     time.Time
}

// Details carries the caller supplied appointment metadata.
type Details struct {
	Reason      string
	Notes       string
	Location    string
	MeetingLink string
}

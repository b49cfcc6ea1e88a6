package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrAlreadyTerminal means the appointment is cancelled or
	// completed and can no longer be modified.
	ErrAlreadyTerminal = errors.New("appointment is already terminal")
)

// errIdempotencyKeyTaken means a concurrent Book carrying the same
// idempotency key committed first. The caller resolves it by fetching
// the winner's appointment; nothing of the loser's attempt is written.
var errIdempotencyKeyTaken = errors.New("idempotency key already used")

type BookParams struct {
	AppointmentID  uuid.UUID
	ProviderID     uuid.UUID
	PatientID      uuid.UUID
	SlotID         uuid.UUID
	Status         Status
	Details        Details
	IdempotencyKey *string
	Now            time.Time
}

// Repository holds the appointment store plus the multi-record
// transactions of the coordinator. Book, Cancel, Reschedule and
// UpdateStatus each commit all their slot and appointment writes
// atomically or leave storage untouched; slot preconditions are
// enforced by conditional UPDATEs inside the transaction and surface
// as slot package sentinels.
type Repository interface {
	Book(ctx context.Context, p BookParams) (*Appointment, error)
	Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string, now time.Time) (*Appointment, error)
	Reschedule(ctx context.Context, appointmentID, newSlotID, actorID uuid.UUID, reason string, now time.Time) (*Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, to Status, actorID uuid.UUID, note string, now time.Time) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)
	History(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
}

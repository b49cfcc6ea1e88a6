package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/scheduling/internal/schedule"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotUnavailable means a conditional transition lost: the slot
	// was taken by someone else between read and write. Recoverable;
	// the caller should re-query available slots.
	ErrSlotUnavailable = errors.New("slot is not available")
	// ErrConflict means a transition was attempted from a state the
	// state machine does not allow. Indicates a caller or concurrency
	// bug and should be logged loudly, never silently retried.
	ErrConflict = errors.New("unexpected slot state transition")
)

// Repository is the slot ledger. Every state transition is a single
// conditional write: the WHERE clause carries the expected current
// state and losing the race surfaces as zero rows affected, never as a
// partial or overwriting update.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// UpsertCandidates inserts generated slots keyed on
	// (provider_id, start_time); already materialized slots are left
	// untouched. Returns the number actually inserted.
	UpsertCandidates(ctx context.Context, providerID uuid.UUID, candidates []schedule.CandidateSlot) (int64, error)

	// ListAvailable returns free slots plus held slots whose hold has
	// lapsed as of now, ordered by start time.
	ListAvailable(ctx context.Context, providerID uuid.UUID, from, to, now time.Time) ([]Slot, error)

	// Hold transitions free -> held, or re-holds a lapsed hold.
	Hold(ctx context.Context, slotID, requesterID uuid.UUID, expiresAt, now time.Time) (*Slot, error)

	// ReleaseHold transitions held -> free, only for the holder.
	ReleaseHold(ctx context.Context, slotID, requesterID uuid.UUID) error

	// SweepExpiredHolds eagerly frees every lapsed hold. Booked slots
	// are never touched, including ones booked between lapse and sweep.
	SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/scheduling/internal/config"
	redisclient "github.com/carebridge/scheduling/internal/redis"
	"github.com/carebridge/scheduling/internal/slot"
)

// Service is the booking coordinator: it orchestrates the multi-record
// transitions for book, cancel and reschedule. The per slot Redis lock
// thins the herd on hot slots; correctness rests entirely on the
// repository's conditional writes, so running without Redis would be
// slower under contention but never wrong.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

// CancelResult surfaces the late-cancellation flag as advisory data;
// fee policy belongs to the caller.
type CancelResult struct {
	Appointment      *Appointment
	LateCancellation bool
}

// Book converts a free slot, or one held by this patient, into a
// booked appointment. An idempotency key makes retries safe: a retried
// call that already succeeded returns the existing appointment instead
// of creating a duplicate.
func (s *Service) Book(ctx context.Context, providerID, patientID, slotID uuid.UUID, details Details, idempotencyKey string) (*Appointment, error) {
	if idempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	status := StatusRequested
	if s.cfg.AutoConfirm {
		status = StatusConfirmed
	}

	params := BookParams{
		AppointmentID: uuid.New(),
		ProviderID:    providerID,
		PatientID:     patientID,
		SlotID:        slotID,
		Status:        status,
		Details:       details,
		Now:           s.now(),
	}
	if idempotencyKey != "" {
		params.IdempotencyKey = &idempotencyKey
	}

	var created *Appointment
	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		appt, err := s.repo.Book(lockCtx, params)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Someone else is mid-booking on this slot. From the
			// caller's view that is the same as losing the race.
			return nil, slot.ErrSlotUnavailable
		}
		if errors.Is(err, errIdempotencyKeyTaken) {
			// A concurrent retry with the same key committed first;
			// hand back its appointment, same as the pre-check would.
			return s.repo.GetByIdempotencyKey(ctx, idempotencyKey)
		}
		return nil, err
	}

	log.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot_id", slotID.String()).
		Str("patient_id", patientID.String()).
		Msg("appointment booked")

	return created, nil
}

// Cancel marks the appointment cancelled and frees its slot in one
// transaction.
func (s *Service) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string) (*CancelResult, error) {
	now := s.now()

	appt, err := s.repo.Cancel(ctx, appointmentID, actorID, reason, now)
	if err != nil {
		if errors.Is(err, slot.ErrConflict) {
			log.Error().
				Str("appointment_id", appointmentID.String()).
				Msg("cancel found slot out of sync with appointment")
		}
		return nil, err
	}

	late := now.After(appt.Start.Add(-s.cfg.LateCancelWindow))

	log.Info().
		Str("appointment_id", appointmentID.String()).
		Bool("late_cancellation", late).
		Msg("appointment cancelled")

	return &CancelResult{Appointment: appt, LateCancellation: late}, nil
}

// Reschedule moves the appointment to a new slot: the old slot is
// freed, the new one booked and the appointment repointed, all or
// nothing. If the new slot was taken in the meantime the appointment
// and old slot are left exactly as they were.
func (s *Service) Reschedule(ctx context.Context, appointmentID, newSlotID, actorID uuid.UUID, reason string) (*Appointment, error) {
	var moved *Appointment
	err := s.locker.WithSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		appt, err := s.repo.Reschedule(lockCtx, appointmentID, newSlotID, actorID, reason, s.now())
		if err != nil {
			return err
		}
		moved = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, slot.ErrSlotUnavailable
		}
		if errors.Is(err, slot.ErrConflict) {
			log.Error().
				Str("appointment_id", appointmentID.String()).
				Msg("reschedule found slot out of sync with appointment")
		}
		return nil, err
	}

	log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("new_slot_id", newSlotID.String()).
		Msg("appointment rescheduled")

	return moved, nil
}

// Complete marks a past appointment as completed.
func (s *Service) Complete(ctx context.Context, appointmentID, actorID uuid.UUID, note string) (*Appointment, error) {
	return s.repo.UpdateStatus(ctx, appointmentID, StatusCompleted, actorID, note, s.now())
}

// MarkNoShow records that the patient did not attend.
func (s *Service) MarkNoShow(ctx context.Context, appointmentID, actorID uuid.UUID, note string) (*Appointment, error) {
	return s.repo.UpdateStatus(ctx, appointmentID, StatusNoShow, actorID, note, s.now())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) History(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, appointmentID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return s.repo.ListByProvider(ctx, providerID, from, to)
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/scheduling/internal/slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, provider_id, patient_id, slot_id, start_time, end_time, visit_type, status, reason, notes, location, meeting_link, cancellation_reason, idempotency_key, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, notes, location, meetingLink, cancellationReason *string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.SlotID,
		&a.Start,
		&a.End,
		&a.VisitType,
		&a.Status,
		&reason,
		&notes,
		&location,
		&meetingLink,
		&cancellationReason,
		&a.IdempotencyKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Reason = deref(reason)
	a.Notes = deref(notes)
	a.Location = deref(location)
	a.MeetingLink = deref(meetingLink)
	a.CancellationReason = deref(cancellationReason)
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Book claims the slot and creates the appointment in one transaction.
// The slot claim is a conditional UPDATE admitting a free slot, a slot
// held by this patient, or a lapsed hold; zero rows affected means the
// race was lost and nothing is committed.
func (r *PgRepository) Book(ctx context.Context, p BookParams) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE slots
		SET state = 'booked',
		    appointment_id = $3,
		    held_by = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND provider_id = $2
		  AND (state = 'free'
		       OR (state = 'held' AND (held_by = $4 OR hold_expires_at <= $5)))
		RETURNING start_time, end_time, visit_type
	`, p.SlotID, p.ProviderID, p.AppointmentID, p.PatientID, p.Now)

	var start, end time.Time
	var visitType slot.VisitType
	if err := row.Scan(&start, &end, &visitType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifySlotMiss(ctx, p.SlotID)
		}
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	apptRow := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, patient_id, slot_id, start_time, end_time, visit_type, status,
			 reason, notes, location, meeting_link, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING `+appointmentColumns+`
	`, p.AppointmentID, p.ProviderID, p.PatientID, p.SlotID, start, end, visitType, p.Status,
		nullable(p.Details.Reason), nullable(p.Details.Notes), nullable(p.Details.Location),
		nullable(p.Details.MeetingLink), p.IdempotencyKey)

	appt, err := scanAppointment(apptRow)
	if err != nil {
		// Two racing Books with the same key can both miss the
		// pre-check; the unique constraint picks the winner and the
		// loser's transaction rolls back whole, slot claim included.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "appointments_idempotency_key" {
			return nil, errIdempotencyKeyTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := insertHistory(ctx, tx, appt.ID, p.Status, p.PatientID, p.Details.Reason, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return appt, nil
}

func (r *PgRepository) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string, now time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, nullable(reason))

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	// The slot reverts to free under its existing identity; it is
	// never deleted, so the audit linkage survives.
	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET state = 'free',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND state = 'booked'
		  AND appointment_id = $2
	`, appt.SlotID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("free slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, slot.ErrConflict
	}

	if err := insertHistory(ctx, tx, appointmentID, StatusCancelled, actorID, reason, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return appt, nil
}

type rescheduleMove struct {
	oldSlotID uuid.UUID
	newSlotID uuid.UUID
	oldStart  time.Time
	newStart  time.Time
}

func (r *PgRepository) Reschedule(ctx context.Context, appointmentID, newSlotID, actorID uuid.UUID, reason string, now time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	// Claim the new slot first: if it was taken between selection and
	// commit, roll back with the old slot and appointment untouched.
	row := tx.QueryRow(ctx, `
		UPDATE slots
		SET state = 'booked',
		    appointment_id = $2,
		    held_by = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND provider_id = $3
		  AND (state = 'free'
		       OR (state = 'held' AND (held_by = $4 OR hold_expires_at <= $5)))
		RETURNING start_time, end_time, visit_type
	`, newSlotID, appointmentID, current.ProviderID, current.PatientID, now)

	var newStart, newEnd time.Time
	var visitType slot.VisitType
	if err := row.Scan(&newStart, &newEnd, &visitType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifySlotMiss(ctx, newSlotID)
		}
		return nil, fmt.Errorf("claim new slot: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET state = 'free',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND state = 'booked'
		  AND appointment_id = $2
	`, current.SlotID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("free old slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, slot.ErrConflict
	}

	apptRow := tx.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    start_time = $3,
		    end_time = $4,
		    visit_type = $5,
		    status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, newSlotID, newStart, newEnd, visitType)

	appt, err := scanAppointment(apptRow)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	move := &rescheduleMove{
		oldSlotID: current.SlotID,
		newSlotID: newSlotID,
		oldStart:  current.Start,
		newStart:  newStart,
	}
	if err := insertHistory(ctx, tx, appointmentID, StatusRescheduled, actorID, reason, move); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return appt, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, to Status, actorID uuid.UUID, note string, now time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, to)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if err := insertHistory(ctx, tx, appointmentID, to, actorID, note, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return appt, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE idempotency_key = $1
	`, key)
	return scanAppointment(row)
}

func (r *PgRepository) History(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, status, actor_id, note, old_slot_id, new_slot_id, old_start, new_start, created_at
		FROM appointment_events
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var note *string
		err := rows.Scan(
			&e.ID,
			&e.AppointmentID,
			&e.Status,
			&e.ActorID,
			&note,
			&e.OldSlotID,
			&e.NewSlotID,
			&e.OldStart,
			&e.NewStart,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Note = deref(note)
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND start_time >= $2
		  AND start_time <= $3
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// getForUpdate loads and row-locks the appointment so a concurrent
// cancel and reschedule serialize instead of interleaving.
func getForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func insertHistory(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, status Status, actorID uuid.UUID, note string, move *rescheduleMove) error {
	var oldSlotID, newSlotID *uuid.UUID
	var oldStart, newStart *time.Time
	if move != nil {
		oldSlotID = &move.oldSlotID
		newSlotID = &move.newSlotID
		oldStart = &move.oldStart
		newStart = &move.newStart
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_events
			(appointment_id, status, actor_id, note, old_slot_id, new_slot_id, old_start, new_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, appointmentID, status, actorID, nullable(note), oldSlotID, newSlotID, oldStart, newStart)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	return nil
}

func (r *PgRepository) classifySlotMiss(ctx context.Context, slotID uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return slot.ErrSlotNotFound
	}
	return slot.ErrSlotUnavailable
}

package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/scheduling/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `id, provider_id, start_time, end_time, visit_type, state, held_by, hold_expires_at, appointment_id, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Start,
		&s.End,
		&s.VisitType,
		&s.State,
		&s.HeldBy,
		&s.HoldExpiresAt,
		&s.AppointmentID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) UpsertCandidates(ctx context.Context, providerID uuid.UUID, candidates []schedule.CandidateSlot) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for _, c := range candidates {
		tag, err := tx.Exec(ctx, `
			INSERT INTO slots (id, provider_id, start_time, end_time, visit_type, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'free', now(), now())
			ON CONFLICT (provider_id, start_time) DO NOTHING
		`, uuid.New(), providerID, c.Start, c.End, VisitInPerson)
		if err != nil {
			return 0, fmt.Errorf("upsert slot at %s: %w", c.Start, err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return inserted, nil
}

func (r *PgRepository) ListAvailable(ctx context.Context, providerID uuid.UUID, from, to, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND start_time >= $2
		  AND start_time <= $3
		  AND (state = 'free' OR (state = 'held' AND hold_expires_at <= $4))
		ORDER BY start_time
	`, providerID, from, to, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Hold is the check-and-set at the heart of the ledger: the WHERE
// clause admits only a free slot or a lapsed hold, so exactly one of
// any number of racing holders sees a row come back.
func (r *PgRepository) Hold(ctx context.Context, slotID, requesterID uuid.UUID, expiresAt, now time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET state = 'held',
		    held_by = $2,
		    hold_expires_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND (state = 'free' OR (state = 'held' AND hold_expires_at <= $4))
		RETURNING `+slotColumns+`
	`, slotID, requesterID, expiresAt, now)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, r.classifyMiss(ctx, slotID)
		}
		return nil, err
	}

	return s, nil
}

func (r *PgRepository) ReleaseHold(ctx context.Context, slotID, requesterID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET state = 'free',
		    held_by = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND state = 'held'
		  AND held_by = $2
	`, slotID, requesterID)
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, slotID); err != nil {
			return err
		}
		return ErrConflict
	}

	return nil
}

func (r *PgRepository) SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET state = 'free',
		    held_by = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE state = 'held'
		  AND hold_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}

	return tag.RowsAffected(), nil
}

// classifyMiss distinguishes "no such slot" from "lost the race" after
// a conditional update matched nothing.
func (r *PgRepository) classifyMiss(ctx context.Context, slotID uuid.UUID) error {
	if _, err := r.GetByID(ctx, slotID); err != nil {
		return err
	}
	return ErrSlotUnavailable
}

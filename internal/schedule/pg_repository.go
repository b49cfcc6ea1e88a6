package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) SaveTemplate(ctx context.Context, tpl *AvailabilityTemplate) error {
	hours, err := json.Marshal(tpl.WeeklyHours)
	if err != nil {
		return fmt.Errorf("marshal weekly hours: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO availability_templates
			(provider_id, time_zone, slot_duration_minutes, buffer_minutes, weekly_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (provider_id) DO UPDATE SET
			time_zone = EXCLUDED.time_zone,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			buffer_minutes = EXCLUDED.buffer_minutes,
			weekly_hours = EXCLUDED.weekly_hours,
			updated_at = now()
	`, tpl.ProviderID, tpl.TimeZone, tpl.SlotDurationMinutes, tpl.BufferMinutes, hours)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}

	return nil
}

func (r *PgRepository) GetTemplate(ctx context.Context, providerID uuid.UUID) (*AvailabilityTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT provider_id, time_zone, slot_duration_minutes, buffer_minutes, weekly_hours, created_at, updated_at
		FROM availability_templates
		WHERE provider_id = $1
	`, providerID)

	var tpl AvailabilityTemplate
	var hours []byte

	err := row.Scan(
		&tpl.ProviderID,
		&tpl.TimeZone,
		&tpl.SlotDurationMinutes,
		&tpl.BufferMinutes,
		&hours,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(hours, &tpl.WeeklyHours); err != nil {
		return nil, fmt.Errorf("unmarshal weekly hours: %w", err)
	}

	return &tpl, nil
}

func (r *PgRepository) AddException(ctx context.Context, ex *ScheduleException) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}

	var special []byte
	if ex.SpecialHours != nil {
		b, err := json.Marshal(ex.SpecialHours)
		if err != nil {
			return fmt.Errorf("marshal special hours: %w", err)
		}
		special = b
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_exceptions
			(id, provider_id, kind, start_date, end_date, reason, special_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, ex.ID, ex.ProviderID, ex.Kind, ex.StartDate, ex.EndDate, nullableString(ex.Reason), special)
	if err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}

	return nil
}

func (r *PgRepository) ListExceptions(ctx context.Context, providerID uuid.UUID, fromDate, toDate string) ([]ScheduleException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, kind, start_date, end_date, reason, special_hours, created_at, updated_at
		FROM schedule_exceptions
		WHERE provider_id = $1
		  AND start_date <= $3
		  AND end_date >= $2
		ORDER BY created_at, id
	`, providerID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleException
	for rows.Next() {
		ex, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ex)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) DeleteException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedule_exceptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func scanException(row pgx.Row) (*ScheduleException, error) {
	var ex ScheduleException
	var startDate, endDate time.Time
	var reason *string
	var special []byte

	err := row.Scan(
		&ex.ID,
		&ex.ProviderID,
		&ex.Kind,
		&startDate,
		&endDate,
		&reason,
		&special,
		&ex.CreatedAt,
		&ex.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	ex.StartDate = startDate.Format(dateLayout)
	ex.EndDate = endDate.Format(dateLayout)
	if reason != nil {
		ex.Reason = *reason
	}
	if len(special) > 0 {
		if err := json.Unmarshal(special, &ex.SpecialHours); err != nil {
			return nil, fmt.Errorf("unmarshal special hours: %w", err)
		}
	}

	return &ex, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

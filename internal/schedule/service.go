package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SlotWriter is the slice of the slot ledger the materializer needs:
// an idempotent upsert keyed on (provider, start time).
type SlotWriter interface {
	UpsertCandidates(ctx context.Context, providerID uuid.UUID, candidates []CandidateSlot) (int64, error)
}

// Service owns templates and exceptions and materializes slots from
// them.
type Service struct {
	repo  Repository
	slots SlotWriter
}

func NewService(repo Repository, slots SlotWriter) *Service {
	return &Service{repo: repo, slots: slots}
}

func (s *Service) SaveTemplate(ctx context.Context, tpl *AvailabilityTemplate) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, providerID uuid.UUID) (*AvailabilityTemplate, error) {
	return s.repo.GetTemplate(ctx, providerID)
}

func (s *Service) AddException(ctx context.Context, ex *ScheduleException) error {
	if err := ex.Validate(); err != nil {
		return err
	}
	if err := s.repo.AddException(ctx, ex); err != nil {
		return fmt.Errorf("add exception: %w", err)
	}
	return nil
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteException(ctx, id)
}

// MaterializeSlots generates and upserts slots for every day between
// fromDate and toDate ("2006-01-02") inclusive, interpreted in the
// template's time zone. Writes go day by day, so a failure partway
// leaves whole days committed and the run can simply be retried: the
// upsert is keyed on (provider, start time), and regenerating an
// already materialized day inserts nothing new.
func (s *Service) MaterializeSlots(ctx context.Context, providerID uuid.UUID, fromDate, toDate string) (int64, error) {
	tpl, err := s.repo.GetTemplate(ctx, providerID)
	if err != nil {
		return 0, err
	}

	loc, err := time.LoadLocation(tpl.TimeZone)
	if err != nil {
		return 0, fmt.Errorf("load template time zone: %w", err)
	}

	day, err := time.ParseInLocation(dateLayout, fromDate, loc)
	if err != nil {
		return 0, &ValidationError{Field: "from", Msg: "must be YYYY-MM-DD"}
	}
	last, err := time.ParseInLocation(dateLayout, toDate, loc)
	if err != nil {
		return 0, &ValidationError{Field: "to", Msg: "must be YYYY-MM-DD"}
	}
	if last.Before(day) {
		return 0, &ValidationError{Field: "date_range", Msg: "to must not be before from"}
	}

	exceptions, err := s.repo.ListExceptions(ctx, providerID, fromDate, toDate)
	if err != nil {
		return 0, fmt.Errorf("list exceptions: %w", err)
	}

	var inserted int64
	for !day.After(last) {
		candidates, err := Generate(tpl, exceptions, day, day)
		if err != nil {
			return inserted, err
		}

		if len(candidates) > 0 {
			n, err := s.slots.UpsertCandidates(ctx, providerID, candidates)
			if err != nil {
				return inserted, fmt.Errorf("upsert slots for %s: %w", day.Format(dateLayout), err)
			}
			inserted += n
		}

		day = day.AddDate(0, 0, 1)
	}

	log.Debug().
		Str("provider_id", providerID.String()).
		Int64("inserted", inserted).
		Msg("slot materialization complete")

	return inserted, nil
}

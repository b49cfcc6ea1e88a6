package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HoldManager applies short lived reservations to slots while a
// requester fills out the booking form, and reclaims lapsed ones.
type HoldManager struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewHoldManager(repo Repository, ttl time.Duration) *HoldManager {
	return &HoldManager{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Hold reserves a slot for the requester until now+ttl. Exactly one of
// any number of concurrent callers wins; the rest get
// ErrSlotUnavailable. Re-holding a slot whose previous hold has lapsed
// is allowed without waiting for the sweep.
func (m *HoldManager) Hold(ctx context.Context, slotID, requesterID uuid.UUID) (*Slot, error) {
	now := m.now()
	s, err := m.repo.Hold(ctx, slotID, requesterID, now.Add(m.ttl), now)
	if err != nil {
		// Lost races are expected under contention, not error-logged.
		return nil, err
	}
	return s, nil
}

func (m *HoldManager) Release(ctx context.Context, slotID, requesterID uuid.UUID) error {
	err := m.repo.ReleaseHold(ctx, slotID, requesterID)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.Warn().
				Str("slot_id", slotID.String()).
				Str("requester_id", requesterID.String()).
				Msg("release of a hold not owned by requester")
		}
		return err
	}
	return nil
}

// ListAvailable returns bookable slots, treating lapsed holds as free
// without mutating them.
func (m *HoldManager) ListAvailable(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	return m.repo.ListAvailable(ctx, providerID, from, to, m.now())
}

// SweepExpired eagerly frees lapsed holds. Slots booked between lapse
// and sweep are untouched because the conditional write only matches
// state = held.
func (m *HoldManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.SweepExpiredHolds(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}
	if n > 0 {
		log.Info().Int64("reclaimed", n).Msg("expired holds swept")
	}
	return n, nil
}

// Run drives the periodic reclamation sweep until ctx is cancelled.
func (m *HoldManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.SweepExpired(ctx); err != nil {
			log.Error().Err(err).Msg("hold sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package slot

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/scheduling/internal/schedule"
)

// memRepo mirrors the conditional-write semantics of the Postgres
// repository: every transition checks the expected current state under
// one lock, so races resolve to exactly one winner.
type memRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
}

func newMemRepo() *memRepo {
	return &memRepo{slots: make(map[uuid.UUID]*Slot)}
}

func (r *memRepo) add(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.slots[s.ID] = &cp
}

func (r *memRepo) get(id uuid.UUID) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.slots[id]
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) UpsertCandidates(_ context.Context, providerID uuid.UUID, candidates []schedule.CandidateSlot) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inserted int64
	for _, c := range candidates {
		exists := false
		for _, s := range r.slots {
			if s.ProviderID == providerID && s.Start.Equal(c.Start) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		id := uuid.New()
		r.slots[id] = &Slot{
			ID:         id,
			ProviderID: providerID,
			Start:      c.Start,
			End:        c.End,
			VisitType:  VisitInPerson,
			State:      StateFree,
		}
		inserted++
	}
	return inserted, nil
}

func (r *memRepo) ListAvailable(_ context.Context, providerID uuid.UUID, from, to, now time.Time) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Slot
	for _, s := range r.slots {
		if s.ProviderID != providerID {
			continue
		}
		if s.Start.Before(from) || s.Start.After(to) {
			continue
		}
		if !s.AvailableAt(now) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *memRepo) Hold(_ context.Context, slotID, requesterID uuid.UUID, expiresAt, now time.Time) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if !s.AvailableAt(now) {
		return nil, ErrSlotUnavailable
	}

	s.State = StateHeld
	holder := requesterID
	exp := expiresAt
	s.HeldBy = &holder
	s.HoldExpiresAt = &exp
	s.UpdatedAt = now

	cp := *s
	return &cp, nil
}

func (r *memRepo) ReleaseHold(_ context.Context, slotID, requesterID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if s.State != StateHeld || s.HeldBy == nil || *s.HeldBy != requesterID {
		return ErrConflict
	}

	s.State = StateFree
	s.HeldBy = nil
	s.HoldExpiresAt = nil
	return nil
}

func (r *memRepo) SweepExpiredHolds(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.slots {
		if s.State != StateHeld || s.HoldExpiresAt == nil || s.HoldExpiresAt.After(now) {
			continue
		}
		s.State = StateFree
		s.HeldBy = nil
		s.HoldExpiresAt = nil
		n++
	}
	return n, nil
}

func freeSlot(providerID uuid.UUID, start time.Time) Slot {
	return Slot{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      start,
		End:        start.Add(30 * time.Minute),
		VisitType:  VisitInPerson,
		State:      StateFree,
	}
}

func managerAt(repo Repository, ttl time.Duration, at time.Time) *HoldManager {
	m := NewHoldManager(repo, ttl)
	m.now = func() time.Time { return at }
	return m
}

func TestHoldReservesFreeSlot(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)
	requester := uuid.New()

	held, err := m.Hold(context.Background(), s.ID, requester)
	require.NoError(t, err)

	assert.Equal(t, StateHeld, held.State)
	require.NotNil(t, held.HeldBy)
	assert.Equal(t, requester, *held.HeldBy)
	require.NotNil(t, held.HoldExpiresAt)
	assert.True(t, held.HoldExpiresAt.Equal(now.Add(5*time.Minute)))
}

func TestHoldLosesToActiveHold(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)

	_, err := m.Hold(context.Background(), s.ID, uuid.New())
	require.NoError(t, err)

	_, err = m.Hold(context.Background(), s.ID, uuid.New())
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestHoldConcurrentSingleWinner(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)

	const contenders = 50
	var wg sync.WaitGroup
	wins := make(chan uuid.UUID, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			requester := uuid.New()
			if _, err := m.Hold(context.Background(), s.ID, requester); err == nil {
				wins <- requester
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []uuid.UUID
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	got := repo.get(s.ID)
	require.NotNil(t, got.HeldBy)
	assert.Equal(t, winners[0], *got.HeldBy)
}

func TestHoldReclaimsLapsedHoldWithoutSweep(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)
	_, err := m.Hold(context.Background(), s.ID, uuid.New())
	require.NoError(t, err)

	// Past expiry, no sweep has run.
	m.now = func() time.Time { return now.Add(6 * time.Minute) }

	second := uuid.New()
	held, err := m.Hold(context.Background(), s.ID, second)
	require.NoError(t, err)
	assert.Equal(t, second, *held.HeldBy)
	assert.True(t, held.HoldExpiresAt.Equal(now.Add(11*time.Minute)))
}

func TestHoldBookedSlot(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	s.State = StateBooked
	apptID := uuid.New()
	s.AppointmentID = &apptID
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)
	_, err := m.Hold(context.Background(), s.ID, uuid.New())
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestHoldUnknownSlot(t *testing.T) {
	m := managerAt(newMemRepo(), 5*time.Minute, time.Now())
	_, err := m.Hold(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestReleaseByHolderFreesSlot(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)
	requester := uuid.New()
	_, err := m.Hold(context.Background(), s.ID, requester)
	require.NoError(t, err)

	require.NoError(t, m.Release(context.Background(), s.ID, requester))

	got := repo.get(s.ID)
	assert.Equal(t, StateFree, got.State)
	assert.Nil(t, got.HeldBy)
	assert.Nil(t, got.HoldExpiresAt)
}

func TestReleaseByNonHolder(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s := freeSlot(uuid.New(), now.Add(time.Hour))
	repo.add(s)

	m := managerAt(repo, 5*time.Minute, now)
	holder := uuid.New()
	_, err := m.Hold(context.Background(), s.ID, holder)
	require.NoError(t, err)

	err = m.Release(context.Background(), s.ID, uuid.New())
	assert.ErrorIs(t, err, ErrConflict)

	// The hold is untouched.
	got := repo.get(s.ID)
	assert.Equal(t, StateHeld, got.State)
	assert.Equal(t, holder, *got.HeldBy)
}

func TestListAvailableTreatsLapsedHoldAsFree(t *testing.T) {
	repo := newMemRepo()
	providerID := uuid.New()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	lapsed := freeSlot(providerID, now.Add(time.Hour))
	active := freeSlot(providerID, now.Add(2*time.Hour))
	repo.add(lapsed)
	repo.add(active)

	m := managerAt(repo, 5*time.Minute, now.Add(-10*time.Minute))
	_, err := m.Hold(context.Background(), lapsed.ID, uuid.New())
	require.NoError(t, err)
	_, err = m.Hold(context.Background(), active.ID, uuid.New())
	require.NoError(t, err)

	// lapsed expired at now-5m; active gets re-held with a live expiry.
	m.now = func() time.Time { return now }
	_, err = m.Hold(context.Background(), active.ID, uuid.New())
	require.NoError(t, err)

	slots, err := m.ListAvailable(context.Background(), providerID, now, now.Add(3*time.Hour))
	require.NoError(t, err)

	require.Len(t, slots, 1)
	assert.Equal(t, lapsed.ID, slots[0].ID)

	// The read path never mutates; the row is still marked held.
	assert.Equal(t, StateHeld, repo.get(lapsed.ID).State)
}

func TestSweepFreesOnlyLapsedHolds(t *testing.T) {
	repo := newMemRepo()
	providerID := uuid.New()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	lapsed := freeSlot(providerID, now.Add(time.Hour))
	live := freeSlot(providerID, now.Add(2*time.Hour))
	booked := freeSlot(providerID, now.Add(3*time.Hour))
	booked.State = StateBooked
	repo.add(lapsed)
	repo.add(live)
	repo.add(booked)

	past := managerAt(repo, 5*time.Minute, now.Add(-10*time.Minute))
	_, err := past.Hold(context.Background(), lapsed.ID, uuid.New())
	require.NoError(t, err)

	m := managerAt(repo, 5*time.Minute, now)
	_, err = m.Hold(context.Background(), live.ID, uuid.New())
	require.NoError(t, err)

	n, err := m.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, StateFree, repo.get(lapsed.ID).State)
	assert.Equal(t, StateHeld, repo.get(live.ID).State)
	assert.Equal(t, StateBooked, repo.get(booked.ID).State)
}

func TestUpsertCandidatesIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	providerID := uuid.New()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	candidates := []schedule.CandidateSlot{
		{Start: start, End: start.Add(30 * time.Minute)},
		{Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
	}

	n, err := repo.UpsertCandidates(context.Background(), providerID, candidates)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.UpsertCandidates(context.Background(), providerID, candidates)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

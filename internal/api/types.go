package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/scheduling/internal/booking"
	"github.com/carebridge/scheduling/internal/schedule"
	"github.com/carebridge/scheduling/internal/slot"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SaveTemplateRequest struct {
	TimeZone            string               `json:"time_zone"`
	SlotDurationMinutes int                  `json:"slot_duration_minutes"`
	BufferMinutes       int                  `json:"buffer_minutes"`
	WeeklyHours         [7]schedule.DayHours `json:"weekly_hours"`
}

type TemplateResponse struct {
	ProviderID          uuid.UUID            `json:"provider_id"`
	TimeZone            string               `json:"time_zone"`
	SlotDurationMinutes int                  `json:"slot_duration_minutes"`
	BufferMinutes       int                  `json:"buffer_minutes"`
	WeeklyHours         [7]schedule.DayHours `json:"weekly_hours"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

type AddExceptionRequest struct {
	Kind         string                          `json:"kind"`
	StartDate    string                          `json:"start_date"`
	EndDate      string                          `json:"end_date"`
	Reason       string                          `json:"reason,omitempty"`
	SpecialHours map[string][]schedule.TimeRange `json:"special_hours,omitempty"`
}

type ExceptionResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
}

type GenerateSlotsRequest struct {
	From string `json:"from"` // YYYY-MM-DD, inclusive
	To   string `json:"to"`
}

type GenerateSlotsResponse struct {
	SlotsCreated int64 `json:"slots_created"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	VisitType string    `json:"visit_type"`
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		Start:     s.Start,
		End:       s.End,
		VisitType: string(s.VisitType),
	}
}

type HoldRequest struct {
	RequesterID string `json:"requester_id"`
}

type HoldResponse struct {
	SlotID        uuid.UUID `json:"slot_id"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

type BookAppointmentRequest struct {
	ProviderID  string `json:"provider_id"`
	PatientID   string `json:"patient_id"`
	SlotID      string `json:"slot_id"`
	Reason      string `json:"reason,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Location    string `json:"location,omitempty"`
	MeetingLink string `json:"meeting_link,omitempty"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	SlotID     uuid.UUID `json:"slot_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	VisitType  string    `json:"visit_type"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		ProviderID: a.ProviderID,
		PatientID:  a.PatientID,
		SlotID:     a.SlotID,
		Start:      a.Start,
		End:        a.End,
		VisitType:  string(a.VisitType),
		Status:     string(a.Status),
		Reason:     a.Reason,
		Notes:      a.Notes,
	}
}

type ActorRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
	Note    string `json:"note,omitempty"`
}

type CancelResponse struct {
	Appointment      AppointmentResponse `json:"appointment"`
	LateCancellation bool                `json:"late_cancellation"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason,omitempty"`
}

type HistoryEntryResponse struct {
	Status    string     `json:"status"`
	ActorID   uuid.UUID  `json:"actor_id"`
	Note      string     `json:"note,omitempty"`
	OldSlotID *uuid.UUID `json:"old_slot_id,omitempty"`
	NewSlotID *uuid.UUID `json:"new_slot_id,omitempty"`
	OldStart  *time.Time `json:"old_start,omitempty"`
	NewStart  *time.Time `json:"new_start,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func toHistoryResponse(entries []booking.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			Status:    string(e.Status),
			ActorID:   e.ActorID,
			Note:      e.Note,
			OldSlotID: e.OldSlotID,
			NewSlotID: e.NewSlotID,
			OldStart:  e.OldStart,
			NewStart:  e.NewStart,
			Timestamp: e.CreatedAt,
		})
	}
	return out
}

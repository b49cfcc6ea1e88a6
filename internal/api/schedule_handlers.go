package api

import (
	"encoding/json"
	"net/http"

	"github.com/carebridge/scheduling/internal/schedule"
)

func saveTemplateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(r, "providerID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a valid UUID")
			return
		}

		var req SaveTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		tpl := &schedule.AvailabilityTemplate{
			ProviderID:          providerID,
			TimeZone:            req.TimeZone,
			SlotDurationMinutes: req.SlotDurationMinutes,
			BufferMinutes:       req.BufferMinutes,
			WeeklyHours:         req.WeeklyHours,
		}

		if err := svc.SaveTemplate(r.Context(), tpl); err != nil {
			handleDomainError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getTemplateHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(r, "providerID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a valid UUID")
			return
		}

		tpl, err := svc.GetTemplate(r.Context(), providerID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, TemplateResponse{
			ProviderID:          tpl.ProviderID,
			TimeZone:            tpl.TimeZone,
			SlotDurationMinutes: tpl.SlotDurationMinutes,
			BufferMinutes:       tpl.BufferMinutes,
			WeeklyHours:         tpl.WeeklyHours,
			UpdatedAt:           tpl.UpdatedAt,
		})
	}
}

func addExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(r, "providerID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a valid UUID")
			return
		}

		var req AddExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ex := &schedule.ScheduleException{
			ProviderID:   providerID,
			Kind:         schedule.ExceptionKind(req.Kind),
			StartDate:    req.StartDate,
			EndDate:      req.EndDate,
			Reason:       req.Reason,
			SpecialHours: req.SpecialHours,
		}

		if err := svc.AddException(r.Context(), ex); err != nil {
			handleDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, ExceptionResponse{
			ID:        ex.ID,
			Kind:      string(ex.Kind),
			StartDate: ex.StartDate,
			EndDate:   ex.EndDate,
		})
	}
}

func deleteExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(r, "exceptionID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_exception_id", "exception id must be a valid UUID")
			return
		}

		if err := svc.DeleteException(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func generateSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(r, "providerID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider id must be a valid UUID")
			return
		}

		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		created, err := svc.MaterializeSlots(r.Context(), providerID, req.From, req.To)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateSlotsResponse{SlotsCreated: created})
	}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/scheduling/internal/booking"
	"github.com/carebridge/scheduling/internal/schedule"
	"github.com/carebridge/scheduling/internal/slot"
)

func TestHandleDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "validation",
			err:    &schedule.ValidationError{Field: "time_zone", Msg: "unknown time zone"},
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "wrapped validation",
			err:    fmt.Errorf("save template: %w", &schedule.ValidationError{Field: "provider_id", Msg: "required"}),
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "template not found",
			err:    schedule.ErrTemplateNotFound,
			status: http.StatusNotFound,
			code:   "template_not_found",
		},
		{
			name:   "slot not found",
			err:    slot.ErrSlotNotFound,
			status: http.StatusNotFound,
			code:   "slot_not_found",
		},
		{
			name:   "appointment not found",
			err:    booking.ErrAppointmentNotFound,
			status: http.StatusNotFound,
			code:   "appointment_not_found",
		},
		{
			name:   "lost race",
			err:    slot.ErrSlotUnavailable,
			status: http.StatusConflict,
			code:   "slot_unavailable",
		},
		{
			name:   "terminal appointment",
			err:    booking.ErrAlreadyTerminal,
			status: http.StatusConflict,
			code:   "already_terminal",
		},
		{
			name:   "state machine conflict",
			err:    slot.ErrConflict,
			status: http.StatusConflict,
			code:   "conflict",
		},
		{
			name:   "unknown error",
			err:    errors.New("connection reset"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			handleDomainError(w, r, tc.err)

			assert.Equal(t, tc.status, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tc.code, resp.Error)
		})
	}
}

func rangeRequest(t *testing.T, from, to string) *http.Request {
	t.Helper()
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	return httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil)
}

func TestParseTimeRange(t *testing.T) {
	t.Run("rfc3339", func(t *testing.T) {
		r := rangeRequest(t, "2024-03-04T09:00:00Z", "2024-03-04T17:00:00Z")
		from, to, err := parseTimeRange(r)
		require.NoError(t, err)
		assert.Equal(t, 9, from.Hour())
		assert.Equal(t, 17, to.Hour())
	})

	t.Run("plain dates widen to end of day", func(t *testing.T) {
		r := rangeRequest(t, "2024-03-04", "2024-03-05")
		from, to, err := parseTimeRange(r)
		require.NoError(t, err)
		assert.True(t, from.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)))
		assert.True(t, to.Equal(time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC)))
	})

	t.Run("single day range", func(t *testing.T) {
		r := rangeRequest(t, "2024-03-04", "2024-03-04")
		from, to, err := parseTimeRange(r)
		require.NoError(t, err)
		assert.True(t, to.After(from))
	})

	t.Run("missing params", func(t *testing.T) {
		_, _, err := parseTimeRange(rangeRequest(t, "", ""))
		assert.Error(t, err)
	})

	t.Run("reversed range", func(t *testing.T) {
		_, _, err := parseTimeRange(rangeRequest(t, "2024-03-05", "2024-03-04"))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := parseTimeRange(rangeRequest(t, "yesterday", "tomorrow"))
		assert.Error(t, err)
	})
}

package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
	"github.com/sanosuguru/go-event-ticketing/internal/application"
)

func newCheckInEcho(cs *MockCheckInService) *echo.Echo {
	e := NewTestEcho()
	h := NewCheckInHandler(cs)
	guard := middleware.RequireRole(middleware.RoleOrganizer)
	e.POST("/tickets/check-in", h.CheckIn, guard)
	e.POST("/tickets/validate", h.Validate, guard)
	return e
}

func TestCheckInHandler_CheckIn(t *testing.T) {
	t.Run("入場できる", func(t *testing.T) {
		tk := sampleTicket("t1")
		require.NoError(t, tk.CheckIn(time.Date(2026, 12, 31, 17, 45, 0, 0, time.UTC)))
		cs := new(MockCheckInService)
		cs.On("CheckIn", mock.Anything, "TK1.t1", "org-1").
			Return(&application.CheckInResult{Ticket: tk, Event: sampleEvent()}, nil)

		rec := serve(newCheckInEcho(cs), http.MethodPost, "/tickets/check-in", `{"credential":"TK1.t1"}`, organizer)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp CheckInResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "t1", resp.TicketID)
		assert.Equal(t, "used", resp.Status)
		assert.Equal(t, "テストイベント", resp.EventTitle)
		assert.Equal(t, "2026-12-31T17:45:00Z", resp.CheckInTime)
	})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"使用済み", appErr(application.KindInvalidState, "チケットは使用済みです"), http.StatusConflict, "invalid_state"},
		{"他の主催者のイベント", appErr(application.KindForbidden, "この操作を行う権限がありません"), http.StatusForbidden, "forbidden"},
		{"偽造された認証コード", appErr(application.KindNotFound, "チケットが見つかりません"), http.StatusNotFound, "not_found"},
		{"開催日前", appErr(application.KindInvalidState, "入場受付は開催日からです"), http.StatusConflict, "invalid_state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := new(MockCheckInService)
			cs.On("CheckIn", mock.Anything, "TK1.t1", "org-1").Return(nil, tt.err)

			rec := serve(newCheckInEcho(cs), http.MethodPost, "/tickets/check-in", `{"credential":"TK1.t1"}`, organizer)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"`+tt.wantKind+`"`)
		})
	}

	t.Run("認証コードなし", func(t *testing.T) {
		cs := new(MockCheckInService)

		rec := serve(newCheckInEcho(cs), http.MethodPost, "/tickets/check-in", `{}`, organizer)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		cs.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("参加者は入場処理できない", func(t *testing.T) {
		cs := new(MockCheckInService)

		rec := serve(newCheckInEcho(cs), http.MethodPost, "/tickets/check-in", `{"credential":"TK1.t1"}`, attendee)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		cs.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheckInHandler_Validate(t *testing.T) {
	cs := new(MockCheckInService)
	tk := sampleTicket("t1")
	cs.On("Inspect", mock.Anything, "TK1.t1", "org-1").Return(&application.InspectResult{
		Ticket:     tk,
		Event:      sampleEvent(),
		CanCheckIn: false,
		Reason:     "入場受付は開催日からです",
	}, nil)

	rec := serve(newCheckInEcho(cs), http.MethodPost, "/tickets/validate", `{"credential":"TK1.t1"}`, organizer)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp InspectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.CanCheckIn)
	assert.Equal(t, "valid", resp.Status)
	assert.Equal(t, "入場受付は開催日からです", resp.Reason)
	cs.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
}

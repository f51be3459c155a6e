package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
)

// CheckInHandler は会場での入場処理を扱う
type CheckInHandler struct {
	checkInService CheckInServiceInterface
}

func NewCheckInHandler(checkInService CheckInServiceInterface) *CheckInHandler {
	return &CheckInHandler{checkInService: checkInService}
}

// CredentialRequest はQRコードから読み取った認証コード
type CredentialRequest struct {
	Credential string `json:"credential" validate:"required" example:"TK1.AB12CD34..."`
}

type CheckInResponse struct {
	TicketID    string `json:"ticket_id"`
	EventID     string `json:"event_id"`
	EventTitle  string `json:"event_title"`
	UserID      string `json:"user_id"`
	Status      string `json:"status" example:"used"`
	CheckInTime string `json:"check_in_time"`
}

type InspectResponse struct {
	TicketID   string `json:"ticket_id"`
	EventID    string `json:"event_id"`
	EventTitle string `json:"event_title"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	CanCheckIn bool   `json:"can_check_in"`
	Reason     string `json:"reason,omitempty"`
}

// CheckIn godoc
// @Summary 入場処理
// @Description 認証コードのチケットを使用済みにします。使用済みのチケットは409を返します
// @Tags check-in
// @Accept json
// @Produce json
// @Param request body CredentialRequest true "認証コード"
// @Success 200 {object} CheckInResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /tickets/check-in [post]
func (h *CheckInHandler) CheckIn(c echo.Context) error {
	var req CredentialRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.checkInService.CheckIn(c.Request().Context(), req.Credential, middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	resp := CheckInResponse{
		TicketID:   res.Ticket.ID,
		EventID:    res.Event.ID,
		EventTitle: res.Event.Title,
		UserID:     res.Ticket.UserID,
		Status:     string(res.Ticket.Status()),
	}
	if at := res.Ticket.CheckInTime(); at != nil {
		resp.CheckInTime = at.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, resp)
}

// Validate godoc
// @Summary 入場可否の確認
// @Description チケットの状態を変えずに入場できるかを返します
// @Tags check-in
// @Accept json
// @Produce json
// @Param request body CredentialRequest true "認証コード"
// @Success 200 {object} InspectResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /tickets/validate [post]
func (h *CheckInHandler) Validate(c echo.Context) error {
	var req CredentialRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.checkInService.Inspect(c.Request().Context(), req.Credential, middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InspectResponse{
		TicketID:   res.Ticket.ID,
		EventID:    res.Event.ID,
		EventTitle: res.Event.Title,
		UserID:     res.Ticket.UserID,
		Status:     string(res.Ticket.Status()),
		CanCheckIn: res.CanCheckIn,
		Reason:     res.Reason,
	})
}

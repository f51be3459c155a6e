package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
)

type TicketHandler struct {
	issuanceService IssuanceServiceInterface
	ticketService   TicketServiceInterface
}

func NewTicketHandler(issuanceService IssuanceServiceInterface, ticketService TicketServiceInterface) *TicketHandler {
	return &TicketHandler{issuanceService: issuanceService, ticketService: ticketService}
}

type PurchaseRequest struct {
	EventID  string `json:"event_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	Quantity int    `json:"quantity" example:"2"`
}

type TicketResponse struct {
	ID                string  `json:"id"`
	EventID           string  `json:"event_id"`
	UserID            string  `json:"user_id"`
	Price             string  `json:"price" example:"5000.00"`
	Credential        string  `json:"credential,omitempty" example:"TK1.AB12CD34..."`
	Status            string  `json:"status" example:"valid"`
	CheckInTime       *string `json:"check_in_time,omitempty"`
	PurchaseReference string  `json:"purchase_reference" example:"TXN-20261016-1A2B3C4D"`
	CreatedAt         string  `json:"created_at"`
}

// toTicketResponse は認証コードを含めるかを呼び出し側で決める。主催者向けの一覧には含めない。
func toTicketResponse(t *ticket.Ticket, withCredential bool) *TicketResponse {
	resp := &TicketResponse{
		ID:                t.ID,
		EventID:           t.EventID,
		UserID:            t.UserID,
		Price:             t.Price.StringFixed(2),
		Status:            string(t.Status()),
		PurchaseReference: t.PurchaseReference,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
	}
	if withCredential {
		resp.Credential = t.Credential
	}
	if at := t.CheckInTime(); at != nil {
		s := at.Format(time.RFC3339)
		resp.CheckInTime = &s
	}
	return resp
}

func toTicketResponses(tickets []*ticket.Ticket, withCredential bool) []*TicketResponse {
	responses := make([]*TicketResponse, len(tickets))
	for i, t := range tickets {
		responses[i] = toTicketResponse(t, withCredential)
	}
	return responses
}

type PurchaseResponse struct {
	PurchaseReference  string            `json:"purchase_reference"`
	EventID            string            `json:"event_id"`
	EventTitle         string            `json:"event_title"`
	Quantity           int               `json:"quantity"`
	Total              string            `json:"total" example:"10000.00"`
	Tickets            []*TicketResponse `json:"tickets"`
	NotificationQueued bool              `json:"notification_queued"`
}

type TicketListResponse struct {
	Tickets []*TicketResponse `json:"tickets"`
	Total   int               `json:"total"`
}

type EventTicketsResponse struct {
	TicketListResponse
	Stats map[string]int `json:"stats"`
}

type PayloadResponse struct {
	TicketID string `json:"ticket_id"`
	Payload  string `json:"payload"`
}

// Purchase godoc
// @Summary チケットを購入
// @Description 指定枚数のチケットを発行します。1人1イベント1回まで購入できます
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body PurchaseRequest true "購入情報"
// @Success 201 {object} PurchaseResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /tickets/purchase [post]
func (h *TicketHandler) Purchase(c echo.Context) error {
	var req PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	p := middleware.PrincipalFrom(c)
	result, err := h.issuanceService.Purchase(c.Request().Context(), application.PurchaseInput{
		EventID:   req.EventID,
		UserID:    p.UserID,
		Quantity:  req.Quantity,
		UserEmail: p.Email,
		UserName:  p.Name,
	})
	if err != nil {
		return err
	}

	total := decimal.Zero
	for _, t := range result.Tickets {
		total = total.Add(t.Price)
	}
	return c.JSON(http.StatusCreated, PurchaseResponse{
		PurchaseReference:  result.PurchaseReference,
		EventID:            result.Event.ID,
		EventTitle:         result.Event.Title,
		Quantity:           len(result.Tickets),
		Total:              total.StringFixed(2),
		Tickets:            toTicketResponses(result.Tickets, true),
		NotificationQueued: result.NotificationQueued,
	})
}

// ListMine godoc
// @Summary 自分のチケット一覧を取得
// @Tags tickets
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param status query string false "状態（valid, used, cancelled, refunded）"
// @Success 200 {object} TicketListResponse
// @Router /tickets/mine [get]
func (h *TicketHandler) ListMine(c echo.Context) error {
	filter, err := ticketFilter(c)
	if err != nil {
		return err
	}
	page, err := h.ticketService.ListUserTickets(c.Request().Context(), middleware.UserIDFrom(c), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTicketList(page, true))
}

// GetByID godoc
// @Summary チケットを取得
// @Description 所有者またはイベントの主催者のみ取得できます
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /tickets/{id} [get]
func (h *TicketHandler) GetByID(c echo.Context) error {
	userID := middleware.UserIDFrom(c)
	t, err := h.ticketService.GetTicket(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTicketResponse(t, t.IsOwnedBy(userID)))
}

// Payload godoc
// @Summary QRコードに埋め込むペイロードを取得
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} PayloadResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /tickets/{id}/payload [get]
func (h *TicketHandler) Payload(c echo.Context) error {
	id := c.Param("id")
	payload, err := h.ticketService.TicketPayload(c.Request().Context(), id, middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PayloadResponse{TicketID: id, Payload: payload})
}

// Cancel godoc
// @Summary チケットをキャンセル
// @Description 未使用のチケットをキャンセルし、在庫を戻します
// @Tags tickets
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /tickets/{id}/cancel [post]
func (h *TicketHandler) Cancel(c echo.Context) error {
	userID := middleware.UserIDFrom(c)
	t, err := h.ticketService.CancelTicket(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTicketResponse(t, false))
}

// Refund godoc
// @Summary チケットを払い戻し（管理者）
// @Tags tickets
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /tickets/{id}/refund [post]
func (h *TicketHandler) Refund(c echo.Context) error {
	t, err := h.ticketService.RefundTicket(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTicketResponse(t, false))
}

// ListByEvent godoc
// @Summary イベントのチケット一覧と状態別の枚数を取得（主催者）
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Param status query string false "状態"
// @Success 200 {object} EventTicketsResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /events/{id}/tickets [get]
func (h *TicketHandler) ListByEvent(c echo.Context) error {
	filter, err := ticketFilter(c)
	if err != nil {
		return err
	}
	res, err := h.ticketService.ListEventTickets(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c), filter)
	if err != nil {
		return err
	}
	stats := make(map[string]int, len(res.Stats))
	for status, n := range res.Stats {
		stats[string(status)] = n
	}
	return c.JSON(http.StatusOK, EventTicketsResponse{
		TicketListResponse: *toTicketList(res.Page, false),
		Stats:              stats,
	})
}

func ticketFilter(c echo.Context) (ticket.ListFilter, error) {
	limit, offset := pageParams(c)
	filter := ticket.ListFilter{Limit: limit, Offset: offset}
	if s := c.QueryParam("status"); s != "" {
		status, err := ticket.ParseStatus(s)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "状態の指定が不正です")
		}
		filter.Status = status
	}
	return filter, nil
}

func toTicketList(page *ticket.Page, withCredential bool) *TicketListResponse {
	return &TicketListResponse{
		Tickets: toTicketResponses(page.Tickets, withCredential),
		Total:   page.Total,
	}
}

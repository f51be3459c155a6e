package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
)

type EventHandler struct {
	eventService     EventServiceInterface
	inventoryService InventoryServiceInterface
}

func NewEventHandler(eventService EventServiceInterface, inventoryService InventoryServiceInterface) *EventHandler {
	return &EventHandler{eventService: eventService, inventoryService: inventoryService}
}

type EventRequest struct {
	Title       string `json:"title" validate:"required" example:"Go Conference 2026"`
	Description string `json:"description" example:"年次カンファレンス"`
	Venue       string `json:"venue" example:"東京国際フォーラム"`
	StartAt     string `json:"start_at" validate:"required" example:"2026-12-31T18:00:00+09:00"`
	EndAt       string `json:"end_at" validate:"required" example:"2026-12-31T21:00:00+09:00"`
	Capacity    int    `json:"capacity" validate:"required,gt=0,lte=50000" example:"500"`
	Price       string `json:"price" validate:"required" example:"5000.00"`
}

// parse は日時と価格を解釈する
func (r *EventRequest) parse() (startAt, endAt time.Time, price decimal.Decimal, err error) {
	if startAt, err = time.Parse(time.RFC3339, r.StartAt); err != nil {
		return startAt, endAt, price, echo.NewHTTPError(http.StatusBadRequest, "開始時刻の形式が不正です")
	}
	if endAt, err = time.Parse(time.RFC3339, r.EndAt); err != nil {
		return startAt, endAt, price, echo.NewHTTPError(http.StatusBadRequest, "終了時刻の形式が不正です")
	}
	if price, err = decimal.NewFromString(r.Price); err != nil {
		return startAt, endAt, price, echo.NewHTTPError(http.StatusBadRequest, "価格の形式が不正です")
	}
	return startAt, endAt, price, nil
}

type EventResponse struct {
	ID          string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	OrganizerID string `json:"organizer_id" example:"org-1"`
	Title       string `json:"title" example:"Go Conference 2026"`
	Description string `json:"description" example:"年次カンファレンス"`
	Venue       string `json:"venue" example:"東京国際フォーラム"`
	StartAt     string `json:"start_at" example:"2026-12-31T18:00:00+09:00"`
	EndAt       string `json:"end_at" example:"2026-12-31T21:00:00+09:00"`
	Capacity    int    `json:"capacity" example:"500"`
	TicketsSold int    `json:"tickets_sold" example:"120"`
	Available   int    `json:"available" example:"380"`
	Price       string `json:"price" example:"5000.00"`
	Status      string `json:"status" example:"published"`
	CreatedAt   string `json:"created_at" example:"2026-10-01T10:00:00+09:00"`
	UpdatedAt   string `json:"updated_at" example:"2026-10-01T10:00:00+09:00"`
}

func toEventResponse(e *event.Event) *EventResponse {
	return &EventResponse{
		ID:          e.ID,
		OrganizerID: e.OrganizerID,
		Title:       e.Title,
		Description: e.Description,
		Venue:       e.Venue,
		StartAt:     e.StartAt.Format(time.RFC3339),
		EndAt:       e.EndAt.Format(time.RFC3339),
		Capacity:    e.Capacity,
		TicketsSold: e.TicketsSold,
		Available:   e.Available(),
		Price:       e.Price.StringFixed(2),
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}

func toEventResponses(events []*event.Event) []*EventResponse {
	responses := make([]*EventResponse, len(events))
	for i, e := range events {
		responses[i] = toEventResponse(e)
	}
	return responses
}

type AvailabilityResponse struct {
	EventID   string `json:"event_id"`
	Available int    `json:"available"`
}

// Create godoc
// @Summary イベントを作成
// @Description 下書き状態のイベントを作成します
// @Tags events
// @Accept json
// @Produce json
// @Param request body EventRequest true "イベント情報"
// @Success 201 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /events [post]
func (h *EventHandler) Create(c echo.Context) error {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	startAt, endAt, price, err := req.parse()
	if err != nil {
		return err
	}

	e, err := h.eventService.CreateEvent(c.Request().Context(), application.CreateEventInput{
		OrganizerID: middleware.UserIDFrom(c),
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Capacity:    req.Capacity,
		Price:       price,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toEventResponse(e))
}

// GetByID godoc
// @Summary イベントを取得
// @Description 下書きのイベントは主催者本人のみ取得できます
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	e, err := h.eventService.GetEvent(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// List godoc
// @Summary 公開中のイベント一覧を取得
// @Tags events
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	events, err := h.eventService.ListPublishedEvents(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponses(events))
}

// ListMine godoc
// @Summary 主催イベントの一覧を取得
// @Description 下書き・中止を含む自分のイベントを返します
// @Tags organizer
// @Produce json
// @Success 200 {array} EventResponse
// @Router /organizer/events [get]
func (h *EventHandler) ListMine(c echo.Context) error {
	limit, offset := pageParams(c)
	events, err := h.eventService.ListOrganizerEvents(c.Request().Context(), middleware.UserIDFrom(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponses(events))
}

// Update godoc
// @Summary イベントを更新
// @Description 販売済みのイベントは日時・会場・定員を変更できません
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "イベントID"
// @Param request body EventRequest true "イベント情報"
// @Success 200 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /events/{id} [put]
func (h *EventHandler) Update(c echo.Context) error {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	startAt, endAt, price, err := req.parse()
	if err != nil {
		return err
	}

	e, err := h.eventService.UpdateEvent(c.Request().Context(), application.UpdateEventInput{
		ID:          c.Param("id"),
		RequesterID: middleware.UserIDFrom(c),
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Capacity:    req.Capacity,
		Price:       price,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Delete godoc
// @Summary イベントを削除
// @Description チケットが販売済みのイベントは削除できません
// @Tags events
// @Param id path string true "イベントID"
// @Success 204
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c echo.Context) error {
	if err := h.eventService.DeleteEvent(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Publish godoc
// @Summary イベントを公開して販売を開始
// @Tags events
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /events/{id}/publish [post]
func (h *EventHandler) Publish(c echo.Context) error {
	e, err := h.eventService.PublishEvent(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Cancel godoc
// @Summary イベントを中止
// @Tags events
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /events/{id}/cancel [post]
func (h *EventHandler) Cancel(c echo.Context) error {
	e, err := h.eventService.CancelEvent(c.Request().Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Availability godoc
// @Summary 残り枚数を取得
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/availability [get]
func (h *EventHandler) Availability(c echo.Context) error {
	id := c.Param("id")
	n, err := h.inventoryService.Available(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{EventID: id, Available: n})
}

// pageParams は limit と offset を読む。不正な値は 0 とし、範囲の補正はサービスに任せる。
func pageParams(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return limit, offset
}

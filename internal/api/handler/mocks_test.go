package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-event-ticketing/internal/api/middleware"
	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
)

// MockEventService はEventServiceInterfaceのモック
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) GetEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	args := m.Called(ctx, id, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) ListPublishedEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventService) ListOrganizerEvents(ctx context.Context, organizerID string, limit, offset int) ([]*event.Event, error) {
	args := m.Called(ctx, organizerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventService) UpdateEvent(ctx context.Context, input application.UpdateEventInput) (*event.Event, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) DeleteEvent(ctx context.Context, id, requesterID string) error {
	args := m.Called(ctx, id, requesterID)
	return args.Error(0)
}

func (m *MockEventService) PublishEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	args := m.Called(ctx, id, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) CancelEvent(ctx context.Context, id, requesterID string) (*event.Event, error) {
	args := m.Called(ctx, id, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

// MockInventoryService はInventoryServiceInterfaceのモック
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) Available(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

// MockIssuanceService はIssuanceServiceInterfaceのモック
type MockIssuanceService struct {
	mock.Mock
}

func (m *MockIssuanceService) Purchase(ctx context.Context, input application.PurchaseInput) (*application.PurchaseResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.PurchaseResult), args.Error(1)
}

// MockTicketService はTicketServiceInterfaceのモック
type MockTicketService struct {
	mock.Mock
}

func (m *MockTicketService) GetTicket(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, error) {
	args := m.Called(ctx, ticketID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Ticket), args.Error(1)
}

func (m *MockTicketService) ListUserTickets(ctx context.Context, userID string, filter ticket.ListFilter) (*ticket.Page, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Page), args.Error(1)
}

func (m *MockTicketService) ListEventTickets(ctx context.Context, eventID, organizerID string, filter ticket.ListFilter) (*application.EventTickets, error) {
	args := m.Called(ctx, eventID, organizerID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.EventTickets), args.Error(1)
}

func (m *MockTicketService) CancelTicket(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, error) {
	args := m.Called(ctx, ticketID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Ticket), args.Error(1)
}

func (m *MockTicketService) RefundTicket(ctx context.Context, ticketID, adminID string) (*ticket.Ticket, error) {
	args := m.Called(ctx, ticketID, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.Ticket), args.Error(1)
}

func (m *MockTicketService) TicketPayload(ctx context.Context, ticketID, userID string) (string, error) {
	args := m.Called(ctx, ticketID, userID)
	return args.String(0), args.Error(1)
}

// MockCheckInService はCheckInServiceInterfaceのモック
type MockCheckInService struct {
	mock.Mock
}

func (m *MockCheckInService) CheckIn(ctx context.Context, code, organizerID string) (*application.CheckInResult, error) {
	args := m.Called(ctx, code, organizerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.CheckInResult), args.Error(1)
}

func (m *MockCheckInService) Inspect(ctx context.Context, code, organizerID string) (*application.InspectResult, error) {
	args := m.Called(ctx, code, organizerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.InspectResult), args.Error(1)
}

// as は呼び出し元のヘッダー
type as struct {
	userID string
	role   middleware.Role
	email  string
}

var (
	anonymous = as{}
	attendee  = as{userID: "user-1", role: middleware.RoleAttendee, email: "user1@example.com"}
	organizer = as{userID: "org-1", role: middleware.RoleOrganizer}
	otherOrg  = as{userID: "org-2", role: middleware.RoleOrganizer}
	adminUser = as{userID: "admin-1", role: middleware.RoleAdmin}
)

// serve はテスト用Echoにリクエストを流す
func serve(e *echo.Echo, method, path, body string, who as) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if who.userID != "" {
		req.Header.Set(middleware.HeaderUserID, who.userID)
		req.Header.Set(middleware.HeaderUserRole, string(who.role))
	}
	if who.email != "" {
		req.Header.Set(middleware.HeaderUserEmail, who.email)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// appErr はサービスが返す構造化エラーを作る
func appErr(kind application.Kind, msg string) error {
	return &application.Error{Kind: kind, Message: msg}
}

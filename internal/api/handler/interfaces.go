package handler

import (
	"context"

	"github.com/sanosuguru/go-event-ticketing/internal/application"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
)

// EventServiceInterface はイベントサービスのインターフェース
type EventServiceInterface interface {
	CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error)
	GetEvent(ctx context.Context, id, requesterID string) (*event.Event, error)
	ListPublishedEvents(ctx context.Context, limit, offset int) ([]*event.Event, error)
	ListOrganizerEvents(ctx context.Context, organizerID string, limit, offset int) ([]*event.Event, error)
	UpdateEvent(ctx context.Context, input application.UpdateEventInput) (*event.Event, error)
	DeleteEvent(ctx context.Context, id, requesterID string) error
	PublishEvent(ctx context.Context, id, requesterID string) (*event.Event, error)
	CancelEvent(ctx context.Context, id, requesterID string) (*event.Event, error)
}

// InventoryServiceInterface は在庫サービスのインターフェース
type InventoryServiceInterface interface {
	Available(ctx context.Context, eventID string) (int, error)
}

// IssuanceServiceInterface はチケット発行サービスのインターフェース
type IssuanceServiceInterface interface {
	Purchase(ctx context.Context, input application.PurchaseInput) (*application.PurchaseResult, error)
}

// TicketServiceInterface はチケットサービスのインターフェース
type TicketServiceInterface interface {
	GetTicket(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, error)
	ListUserTickets(ctx context.Context, userID string, filter ticket.ListFilter) (*ticket.Page, error)
	ListEventTickets(ctx context.Context, eventID, organizerID string, filter ticket.ListFilter) (*application.EventTickets, error)
	CancelTicket(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, error)
	RefundTicket(ctx context.Context, ticketID, adminID string) (*ticket.Ticket, error)
	TicketPayload(ctx context.Context, ticketID, userID string) (string, error)
}

// CheckInServiceInterface は入場処理サービスのインターフェース
type CheckInServiceInterface interface {
	CheckIn(ctx context.Context, code, organizerID string) (*application.CheckInResult, error)
	Inspect(ctx context.Context, code, organizerID string) (*application.InspectResult, error)
}

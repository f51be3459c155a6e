package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

// TicketService は発行済みチケットの参照・キャンセル・返金を扱う
type TicketService struct {
	txManager  transaction.Manager
	eventRepo  event.Repository
	ticketRepo ticket.Repository
	inventory  *InventoryService
	now        func() time.Time
}

func NewTicketService(tm transaction.Manager, er event.Repository, tr ticket.Repository, inventory *InventoryService) *TicketService {
	return &TicketService{txManager: tm, eventRepo: er, ticketRepo: tr, inventory: inventory, now: time.Now}
}

// GetTicket はチケットを取得する。所有者かイベントの主催者のみ参照できる。
func (s *TicketService) GetTicket(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, error) {
	t, _, err := s.accessible(ctx, ticketID, requesterID)
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

func (s *TicketService) ListUserTickets(ctx context.Context, userID string, filter ticket.ListFilter) (*ticket.Page, error) {
	if userID == "" {
		return nil, classify(ticket.ErrUserIDRequired)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	page, err := s.ticketRepo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, classify(err)
	}
	return page, nil
}

// EventTickets はイベントのチケット一覧と状態別の枚数
type EventTickets struct {
	Page  *ticket.Page
	Stats map[ticket.Status]int
}

// ListEventTickets はイベントのチケット一覧を主催者に返す
func (s *TicketService) ListEventTickets(ctx context.Context, eventID, organizerID string, filter ticket.ListFilter) (*EventTickets, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, classify(err)
	}
	if !ev.IsOwnedBy(organizerID) {
		return nil, classify(ErrForbidden)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	page, err := s.ticketRepo.ListByEvent(ctx, eventID, filter)
	if err != nil {
		return nil, classify(err)
	}
	stats, err := s.ticketRepo.CountByStatus(ctx, eventID)
	if err != nil {
		return nil, classify(err)
	}
	return &EventTickets{Page: page, Stats: stats}, nil
}

// CancelTicket は未使用のチケットをキャンセルし、販売枚数を再計算して枠を戻す。
// 所有者かイベントの主催者のみ実行できる。
func (s *TicketService) CancelTicket(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, error) {
	t, _, err := s.accessible(ctx, ticketID, requesterID)
	if err != nil {
		return nil, classify(err)
	}
	return s.close(ctx, t, requesterID, t.Cancel)
}

// RefundTicket はチケットを返金済みにし、販売枚数を再計算する。
// 呼び出し側で管理者であることを確認済みであること。
func (s *TicketService) RefundTicket(ctx context.Context, ticketID, adminID string) (*ticket.Ticket, error) {
	if adminID == "" {
		return nil, classify(ErrForbidden)
	}
	t, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	return s.close(ctx, t, adminID, t.Refund)
}

func (s *TicketService) close(ctx context.Context, t *ticket.Ticket, actorID string, apply func(time.Time) error) (*ticket.Ticket, error) {
	from := t.Status()
	if err := apply(s.now()); err != nil {
		return nil, classify(err)
	}
	var sold int
	err := transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.ticketRepo.UpdateStatus(ctx, tx, t, from); err != nil {
			return err
		}
		var err error
		sold, err = s.eventRepo.RecountSold(ctx, tx, t.EventID)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	s.inventory.Invalidate(ctx, t.EventID)
	metrics.Get().ObserveTransition(string(t.Status()))
	logger.FromContext(ctx).Info("チケットの状態を変更しました",
		zap.String("ticket_id", t.ID),
		zap.String("from", string(from)),
		zap.String("to", string(t.Status())),
		zap.String("actor_id", actorID),
		zap.Int("tickets_sold", sold),
	)
	return t, nil
}

// TicketPayload は所有者の画面に表示するQRペイロードを返す
func (s *TicketService) TicketPayload(ctx context.Context, ticketID, userID string) (string, error) {
	t, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return "", classify(err)
	}
	if !t.IsOwnedBy(userID) {
		return "", classify(ErrForbidden)
	}
	if !t.Status().IsActive() {
		return "", classify(ticket.ErrAlreadyClosed)
	}
	payload, err := credential.Payload{
		TicketID: t.ID,
		EventID:  t.EventID,
		UserID:   t.UserID,
		Code:     t.Credential,
	}.Encode()
	if err != nil {
		return "", classify(err)
	}
	return payload, nil
}

// accessible はチケットとイベントを取得し、所有者か主催者であることを確認する
func (s *TicketService) accessible(ctx context.Context, ticketID, requesterID string) (*ticket.Ticket, *event.Event, error) {
	t, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if t.IsOwnedBy(requesterID) {
		return t, nil, nil
	}
	ev, err := s.eventRepo.GetByID(ctx, t.EventID)
	if err != nil {
		return nil, nil, err
	}
	if !ev.IsOwnedBy(requesterID) {
		return nil, nil, ErrForbidden
	}
	return t, ev, nil
}

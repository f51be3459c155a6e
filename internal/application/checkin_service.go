package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

// CheckInService は会場での入場処理を行う。
// 入場可否は必ず台帳上のチケットで判断し、QRペイロードの内容は信用しない。
type CheckInService struct {
	txManager  transaction.Manager
	eventRepo  event.Repository
	ticketRepo ticket.Repository
	verifier   CredentialVerifier
	loc        *time.Location
	now        func() time.Time
}

// NewCheckInService は CheckInService を作成する。loc は入場受付の日付判定に使う。
func NewCheckInService(tm transaction.Manager, er event.Repository, tr ticket.Repository, verifier CredentialVerifier, loc *time.Location) *CheckInService {
	if loc == nil {
		loc = time.UTC
	}
	return &CheckInService{
		txManager:  tm,
		eventRepo:  er,
		ticketRepo: tr,
		verifier:   verifier,
		loc:        loc,
		now:        time.Now,
	}
}

type CheckInResult struct {
	Ticket *ticket.Ticket
	Event  *event.Event
}

// CheckIn は認証コードのチケットを使用済みにする。使用済みのチケットは再入場できない。
func (s *CheckInService) CheckIn(ctx context.Context, code, organizerID string) (*CheckInResult, error) {
	res, err := s.checkIn(ctx, code, organizerID)
	if err != nil {
		err = classify(err)
		metrics.Get().ObserveCheckIn(checkInResultLabel(err))
		return nil, err
	}
	metrics.Get().ObserveCheckIn("success")
	return res, nil
}

func (s *CheckInService) checkIn(ctx context.Context, code, organizerID string) (*CheckInResult, error) {
	t, ev, err := s.lookup(ctx, code, organizerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !ev.CheckInOpen(now, s.loc) {
		return nil, ticket.ErrCheckInBeforeEvent
	}
	if err := t.CheckIn(now); err != nil {
		return nil, err
	}
	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		return s.ticketRepo.UpdateStatus(ctx, tx, t, ticket.StatusValid)
	})
	if err != nil {
		// 同じチケットの入場処理が先に完了していた
		if errors.Is(err, ticket.ErrStatusConflict) {
			return nil, ticket.ErrAlreadyUsed
		}
		return nil, err
	}
	logger.FromContext(ctx).Info("入場処理が完了しました",
		zap.String("ticket_id", t.ID), zap.String("event_id", ev.ID), zap.String("organizer_id", organizerID))
	return &CheckInResult{Ticket: t, Event: ev}, nil
}

type InspectResult struct {
	Ticket     *ticket.Ticket
	Event      *event.Event
	CanCheckIn bool
	Reason     string // CanCheckIn が false のときの理由
}

// Inspect は状態を変えずに認証コードのチケットが入場可能かを返す
func (s *CheckInService) Inspect(ctx context.Context, code, organizerID string) (*InspectResult, error) {
	t, ev, err := s.lookup(ctx, code, organizerID)
	if err != nil {
		return nil, classify(err)
	}
	res := &InspectResult{Ticket: t, Event: ev, CanCheckIn: true}
	switch {
	case t.Status() == ticket.StatusUsed:
		res.CanCheckIn, res.Reason = false, ticket.ErrAlreadyUsed.Error()
	case t.Status() != ticket.StatusValid:
		res.CanCheckIn, res.Reason = false, ticket.ErrNotValidForCheckIn.Error()
	case !ev.CheckInOpen(s.now(), s.loc):
		res.CanCheckIn, res.Reason = false, ticket.ErrCheckInBeforeEvent.Error()
	}
	return res, nil
}

// lookup は認証コードからチケットとイベントを引き、主催者本人かを確認する
func (s *CheckInService) lookup(ctx context.Context, code, organizerID string) (*ticket.Ticket, *event.Event, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil, ticket.ErrCredentialRequired
	}
	ticketID, err := s.verifier.Verify(code)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.ticketRepo.GetByCredential(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if t.ID != ticketID {
		return nil, nil, ticket.ErrTicketNotFound
	}
	ev, err := s.eventRepo.GetByID(ctx, t.EventID)
	if err != nil {
		return nil, nil, err
	}
	if !ev.IsOwnedBy(organizerID) {
		return nil, nil, ErrForbidden
	}
	return t, ev, nil
}

func checkInResultLabel(err error) string {
	switch {
	case errors.Is(err, ticket.ErrAlreadyUsed):
		return "already_used"
	case KindOf(err) == KindForbidden:
		return "forbidden"
	case KindOf(err) == KindNotFound:
		return "not_found"
	case KindOf(err) == KindInvalidState, KindOf(err) == KindValidation:
		return "rejected"
	default:
		return "error"
	}
}

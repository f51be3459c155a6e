package application

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-event-ticketing/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-ticketing/internal/notification"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/logger"
	"github.com/sanosuguru/go-event-ticketing/internal/pkg/metrics"
)

const (
	mintAttempts           = 3
	defaultPurchaseLockTTL = 10 * time.Second
	purchaseLockTries      = 3
	purchaseLockDelay      = 100 * time.Millisecond
)

// IssuanceService は在庫の確保とチケットの発行をひとつのトランザクションで行う
type IssuanceService struct {
	txManager  transaction.Manager
	eventRepo  event.Repository
	ticketRepo ticket.Repository
	minter     CredentialMinter
	inventory  *InventoryService
	locker     redisinfra.Locker
	lockTTL    time.Duration
	queue      NotificationQueue
	loc        *time.Location
	now        func() time.Time
	newID      func() string
}

// NewIssuanceService は IssuanceService を作成する。locker と queue は nil でもよい。
func NewIssuanceService(
	tm transaction.Manager,
	er event.Repository,
	tr ticket.Repository,
	minter CredentialMinter,
	inventory *InventoryService,
	locker redisinfra.Locker,
	queue NotificationQueue,
	loc *time.Location,
) *IssuanceService {
	if loc == nil {
		loc = time.UTC
	}
	return &IssuanceService{
		txManager:  tm,
		eventRepo:  er,
		ticketRepo: tr,
		minter:     minter,
		inventory:  inventory,
		locker:     locker,
		lockTTL:    defaultPurchaseLockTTL,
		queue:      queue,
		loc:        loc,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetPurchaseLockTTL は購入ロックの有効期限を変更する。0 以下なら変更しない。
func (s *IssuanceService) SetPurchaseLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

type PurchaseInput struct {
	EventID   string
	UserID    string
	Quantity  int
	UserEmail string // 空なら購入通知を送らない
	UserName  string
}

type PurchaseResult struct {
	Event              *event.Event
	Tickets            []*ticket.Ticket
	PurchaseReference  string
	NotificationQueued bool
}

// Purchase はチケットを quantity 枚発行する。
// 在庫の確保と全チケットの保存は同じトランザクションで行い、途中で失敗した場合は何も残らない。
// 同じ入力で再度呼ぶと新しいチケットが発行される。
func (s *IssuanceService) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	result, err := s.purchase(ctx, input)
	if err != nil {
		err = classify(err)
		metrics.Get().ObservePurchase(purchaseResultLabel(err), 0)
		return nil, err
	}
	metrics.Get().ObservePurchase("success", len(result.Tickets))
	return result, nil
}

func (s *IssuanceService) purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	// 枚数の検証はストレージに触れる前に行う
	if err := ticket.ValidateQuantity(input.Quantity); err != nil {
		return nil, err
	}
	if input.EventID == "" {
		return nil, ticket.ErrEventIDRequired
	}
	if input.UserID == "" {
		return nil, ticket.ErrUserIDRequired
	}

	if s.locker != nil {
		lock, err := s.locker.AcquireLockWithRetry(ctx, redisinfra.PurchaseLockKey(input.EventID, input.UserID),
			s.lockTTL, purchaseLockTries, purchaseLockDelay)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.FromContext(ctx).Warn("購入ロックの解放に失敗", zap.Error(err))
			}
		}()
	}

	ev, err := s.eventRepo.GetByID(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsOnSale() {
		return nil, event.ErrEventNotOnSale
	}
	holding, err := s.ticketRepo.HasActiveHolding(ctx, nil, input.EventID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("保有チケットの確認に失敗: %w", err)
	}
	if holding {
		return nil, ticket.ErrDuplicateHolding
	}
	if avail := ev.Available(); avail < input.Quantity {
		return nil, &event.CapacityError{Requested: input.Quantity, Available: avail}
	}

	reference := newPurchaseReference(s.now())
	var tickets []*ticket.Ticket
	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		sold, err := s.eventRepo.ReserveCapacity(ctx, tx, input.EventID, input.Quantity)
		if err != nil {
			return err
		}
		// 在庫の確保でイベント行がロックされるため、ここでの再確認は同じイベントの購入と競合しない
		holding, err := s.ticketRepo.HasActiveHolding(ctx, tx, input.EventID, input.UserID)
		if err != nil {
			return fmt.Errorf("保有チケットの再確認に失敗: %w", err)
		}
		if holding {
			return ticket.ErrDuplicateHolding
		}

		tickets = make([]*ticket.Ticket, 0, input.Quantity)
		for i := 0; i < input.Quantity; i++ {
			t, err := s.issue(ctx, tx, ev, input.UserID, reference)
			if err != nil {
				return err
			}
			tickets = append(tickets, t)
		}
		ev.TicketsSold = sold
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, ev.ID)
	logger.FromContext(ctx).Info("チケットを発行しました",
		zap.String("event_id", ev.ID),
		zap.String("user_id", input.UserID),
		zap.String("purchase_reference", reference),
		zap.Int("quantity", len(tickets)),
	)

	return &PurchaseResult{
		Event:              ev,
		Tickets:            tickets,
		PurchaseReference:  reference,
		NotificationQueued: s.notify(ctx, input, ev, reference, tickets),
	}, nil
}

// issue は認証コードを発行してチケットを1枚保存する。コードが既存のものと重複した場合は作り直す。
func (s *IssuanceService) issue(ctx context.Context, tx transaction.Tx, ev *event.Event, userID, reference string) (*ticket.Ticket, error) {
	id := s.newID()
	for attempt := 1; attempt <= mintAttempts; attempt++ {
		cred, err := s.minter.Mint(id, ev.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("認証コードの発行に失敗: %w", err)
		}
		t := ticket.NewTicket(id, ev.ID, userID, cred.Code, reference, ev.Price)
		t.CreatedAt = s.now()
		t.UpdatedAt = t.CreatedAt

		err = s.ticketRepo.Create(ctx, tx, t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ticket.ErrCredentialConflict) {
			return nil, err
		}
		logger.FromContext(ctx).Warn("認証コードが重複したため再発行します", zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("認証コードを%d回発行しても重複しました: %w", mintAttempts, ticket.ErrCredentialConflict)
}

// notify は購入通知を送信待ちに積む。失敗しても購入は取り消さない。
func (s *IssuanceService) notify(ctx context.Context, input PurchaseInput, ev *event.Event, reference string, tickets []*ticket.Ticket) bool {
	if s.queue == nil || input.UserEmail == "" {
		return false
	}
	n := notification.NewPurchaseNotification(
		notification.Recipient{Email: input.UserEmail, Name: input.UserName},
		ev, reference, tickets, s.loc,
	)
	if err := s.queue.Enqueue(n); err != nil {
		metrics.Get().ObserveNotification("dropped")
		logger.FromContext(ctx).Warn("購入通知を送信待ちに積めませんでした",
			zap.String("purchase_reference", reference), zap.Error(err))
		return false
	}
	metrics.Get().ObserveNotification("queued")
	return true
}

var referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newPurchaseReference は購入番号を生成する（TXN-<unix ms>-<乱数>）
func newPurchaseReference(now time.Time) string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "TXN-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
	}
	return "TXN-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + referenceEncoding.EncodeToString(b[:])
}

func purchaseResultLabel(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "not_on_sale"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindDuplicateHolding:
		return "duplicate_holding"
	default:
		return "error"
	}
}

package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
)

// Recipient は通知の宛先
type Recipient struct {
	Email string
	Name  string
}

// TicketInfo は通知に含めるチケット1枚分の情報
type TicketInfo struct {
	TicketID   string `json:"ticket_id"`
	Credential string `json:"credential"`
	Price      string `json:"price"`
}

// PurchaseNotification は購入完了時に外部へ送る通知
type PurchaseNotification struct {
	UserEmail         string       `json:"user_email"`
	UserName          string       `json:"user_name"`
	EventID           string       `json:"event_id"`
	EventTitle        string       `json:"event_title"`
	EventDate         string       `json:"event_date"`
	EventTime         string       `json:"event_time"`
	Venue             string       `json:"venue"`
	PurchaseReference string       `json:"purchase_reference"`
	Total             string       `json:"total"`
	Tickets           []TicketInfo `json:"tickets"`
}

// NewPurchaseNotification は購入結果から通知を組み立てる。
// 日付と時刻は loc で表示する。
func NewPurchaseNotification(to Recipient, ev *event.Event, reference string, tickets []*ticket.Ticket, loc *time.Location) PurchaseNotification {
	if loc == nil {
		loc = time.UTC
	}
	start := ev.StartAt.In(loc)
	total := decimal.Zero
	infos := make([]TicketInfo, 0, len(tickets))
	for _, t := range tickets {
		total = total.Add(t.Price)
		infos = append(infos, TicketInfo{
			TicketID:   t.ID,
			Credential: t.Credential,
			Price:      t.Price.StringFixed(2),
		})
	}
	return PurchaseNotification{
		UserEmail:         to.Email,
		UserName:          to.Name,
		EventID:           ev.ID,
		EventTitle:        ev.Title,
		EventDate:         start.Format("2006-01-02"),
		EventTime:         start.Format("15:04"),
		Venue:             ev.Venue,
		PurchaseReference: reference,
		Total:             total.StringFixed(2),
		Tickets:           infos,
	}
}

// Publisher は購入通知を外部の通知サービスへ送る
type Publisher interface {
	Publish(ctx context.Context, n PurchaseNotification) error
	Close() error
}

// LogPublisher は通知をログに出すだけの Publisher。ブローカーがない環境で使う。
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, n PurchaseNotification) error {
	p.logger.Info("購入通知",
		zap.String("purchase_reference", n.PurchaseReference),
		zap.String("event_id", n.EventID),
		zap.String("user_email", n.UserEmail),
		zap.Int("tickets", len(n.Tickets)),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

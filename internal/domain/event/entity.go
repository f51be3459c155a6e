package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status はイベントの公開状態を表す
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
)

// MaxCapacity はひとつのイベントに設定できる定員の上限
const MaxCapacity = 50000

// Event はイベントエンティティを表す
type Event struct {
	ID          string
	OrganizerID string
	Title       string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
	TicketsSold int // 予約処理（ReserveCapacity / RecountSold）以外で書き換えない
	Price       decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int // 楽観的ロック用
}

// NewEvent は下書き状態の新しいイベントを作成する
func NewEvent(organizerID, title, description, venue string, startAt, endAt time.Time, capacity int, price decimal.Decimal) *Event {
	now := time.Now()
	return &Event{
		OrganizerID: organizerID,
		Title:       title,
		Description: description,
		Venue:       venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Capacity:    capacity,
		Price:       price,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}
}

// Validate はイベントの検証を行う
func (e *Event) Validate() error {
	if e.OrganizerID == "" {
		return ErrOrganizerRequired
	}
	if e.Title == "" {
		return ErrEventTitleRequired
	}
	if e.Capacity <= 0 || e.Capacity > MaxCapacity {
		return ErrInvalidCapacity
	}
	if e.Capacity < e.TicketsSold {
		return ErrCapacityBelowSold
	}
	if e.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if e.EndAt.Before(e.StartAt) {
		return ErrInvalidEventTime
	}
	return nil
}

// IsOwnedBy は指定ユーザーがイベントの主催者かを返す
func (e *Event) IsOwnedBy(userID string) bool {
	return userID != "" && e.OrganizerID == userID
}

// IsOnSale はチケットを購入できる状態かを返す
func (e *Event) IsOnSale() bool {
	return e.Status == StatusPublished
}

// Available は残りの販売可能枚数を返す
func (e *Event) Available() int {
	if n := e.Capacity - e.TicketsSold; n > 0 {
		return n
	}
	return 0
}

// HasSales は一枚でも販売済みかを返す
func (e *Event) HasSales() bool {
	return e.TicketsSold > 0
}

// Publish は下書きのイベントを公開する
func (e *Event) Publish() error {
	if e.Status != StatusDraft {
		return ErrInvalidStatusTransition
	}
	e.Status = StatusPublished
	e.UpdatedAt = time.Now()
	return nil
}

// Cancel は公開中のイベントを中止する
func (e *Event) Cancel() error {
	if e.Status != StatusPublished {
		return ErrInvalidStatusTransition
	}
	e.Status = StatusCancelled
	e.UpdatedAt = time.Now()
	return nil
}

// Changes はイベント更新で変更される項目
type Changes struct {
	Title       string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
	Price       decimal.Decimal
}

// ApplyChanges は変更を適用する。
// 販売済みのイベントでは定員・日時・会場を変更できない。
func (e *Event) ApplyChanges(c Changes) error {
	if e.Status == StatusCancelled {
		return ErrInvalidStatusTransition
	}
	if e.HasSales() {
		if c.Capacity != e.Capacity || c.Venue != e.Venue ||
			!c.StartAt.Equal(e.StartAt) || !c.EndAt.Equal(e.EndAt) {
			return ErrEventLocked
		}
	}
	e.Title = c.Title
	e.Description = c.Description
	e.Venue = c.Venue
	e.StartAt = c.StartAt
	e.EndAt = c.EndAt
	e.Capacity = c.Capacity
	e.Price = c.Price
	e.UpdatedAt = time.Now()
	return e.Validate()
}

// CheckInOpen は now の時点で入場受付ができるかを返す。
// 比較は loc における日付単位で行い、時刻は無視する。
func (e *Event) CheckInOpen(now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	return !dayOf(e.StartAt, loc).After(dayOf(now, loc))
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

package ticket

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status はチケットの状態を表す
type Status string

const (
	StatusValid     Status = "valid"
	StatusUsed      Status = "used"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// MaxPurchaseQuantity は一度の購入で発行できる枚数の上限
const MaxPurchaseQuantity = 10

// transitions は許可された状態遷移の一覧。ここにない遷移はすべて拒否する。
var transitions = map[Status][]Status{
	StatusValid: {StatusUsed, StatusCancelled, StatusRefunded},
	StatusUsed:  {StatusRefunded},
}

// ParseStatus は文字列をStatusに変換する
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusValid, StatusUsed, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// IsActive は在庫を消費している状態（有効・使用済み）かを返す
func (s Status) IsActive() bool {
	return s == StatusValid || s == StatusUsed
}

// CanTransition は from から to への遷移が許可されているかを返す
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Ticket はチケットエンティティを表す。
// 状態と入場時刻は CheckIn / Cancel / Refund でのみ変更できる。
type Ticket struct {
	ID                string
	EventID           string
	UserID            string
	Price             decimal.Decimal
	Credential        string
	PurchaseReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	status      Status
	checkInTime *time.Time
}

// NewTicket は有効状態の新しいチケットを作成する
func NewTicket(id, eventID, userID, credential, purchaseReference string, price decimal.Decimal) *Ticket {
	now := time.Now()
	return &Ticket{
		ID:                id,
		EventID:           eventID,
		UserID:            userID,
		Price:             price,
		Credential:        credential,
		PurchaseReference: purchaseReference,
		CreatedAt:         now,
		UpdatedAt:         now,
		status:            StatusValid,
	}
}

// Snapshot は永続化されたチケットの状態
type Snapshot struct {
	ID                string
	EventID           string
	UserID            string
	Price             decimal.Decimal
	Credential        string
	Status            Status
	CheckInTime       *time.Time
	PurchaseReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Rehydrate は永続化された状態からチケットを復元する
func Rehydrate(s Snapshot) *Ticket {
	return &Ticket{
		ID:                s.ID,
		EventID:           s.EventID,
		UserID:            s.UserID,
		Price:             s.Price,
		Credential:        s.Credential,
		PurchaseReference: s.PurchaseReference,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		status:            s.Status,
		checkInTime:       s.CheckInTime,
	}
}

// Status は現在の状態を返す
func (t *Ticket) Status() Status {
	return t.status
}

// CheckInTime は入場時刻を返す。使用済みでなければ nil。
func (t *Ticket) CheckInTime() *time.Time {
	return t.checkInTime
}

// IsOwnedBy は指定ユーザーがチケットの所有者かを返す
func (t *Ticket) IsOwnedBy(userID string) bool {
	return userID != "" && t.UserID == userID
}

// CheckIn はチケットを使用済みにする
func (t *Ticket) CheckIn(now time.Time) error {
	switch t.status {
	case StatusValid:
	case StatusUsed:
		return ErrAlreadyUsed
	default:
		return ErrNotValidForCheckIn
	}
	at := now
	t.checkInTime = &at
	return t.transition(StatusUsed, now)
}

// Cancel はチケットをキャンセルする
func (t *Ticket) Cancel(now time.Time) error {
	switch t.status {
	case StatusUsed:
		return ErrCannotCancelUsed
	case StatusCancelled, StatusRefunded:
		return ErrAlreadyClosed
	}
	return t.transition(StatusCancelled, now)
}

// Refund はチケットを返金済みにする
func (t *Ticket) Refund(now time.Time) error {
	if t.status == StatusCancelled || t.status == StatusRefunded {
		return ErrAlreadyClosed
	}
	return t.transition(StatusRefunded, now)
}

func (t *Ticket) transition(to Status, now time.Time) error {
	if !CanTransition(t.status, to) {
		return ErrInvalidTransition
	}
	t.status = to
	t.UpdatedAt = now
	return nil
}

// ValidateQuantity は購入枚数が1以上 MaxPurchaseQuantity 以下かを検証する
func ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxPurchaseQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

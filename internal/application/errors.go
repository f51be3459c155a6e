package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/credential"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
	redisinfra "github.com/sanosuguru/go-event-ticketing/internal/infrastructure/redis"
)

// Kind はサービス境界で返すエラーの種別
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindDuplicateHolding Kind = "duplicate_holding"
	KindForbidden        Kind = "forbidden"
	KindValidation       Kind = "validation"
	KindUnavailable      Kind = "unavailable"
)

// ErrForbidden は操作の権限がないことを表す
var ErrForbidden = errors.New("この操作を行う権限がありません")

// Error はサービスが返す構造化エラー。
// Available は KindCapacityExceeded のときだけ設定される。
type Error struct {
	Kind      Kind
	Message   string
	Available *int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindUnavailable {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf は err の種別を返す。*Error でなければ KindUnavailable。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnavailable
}

const unavailableMessage = "一時的に処理できません。しばらくしてから再度お試しください"

var (
	notFoundErrors = []error{
		event.ErrEventNotFound,
		ticket.ErrTicketNotFound,
	}
	invalidStateErrors = []error{
		event.ErrEventNotOnSale,
		event.ErrInvalidStatusTransition,
		event.ErrEventLocked,
		event.ErrEventHasSales,
		event.ErrOptimisticLockConflict,
		ticket.ErrAlreadyUsed,
		ticket.ErrNotValidForCheckIn,
		ticket.ErrCannotCancelUsed,
		ticket.ErrAlreadyClosed,
		ticket.ErrInvalidTransition,
		ticket.ErrStatusConflict,
		ticket.ErrCheckInBeforeEvent,
	}
	validationErrors = []error{
		event.ErrOrganizerRequired,
		event.ErrEventTitleRequired,
		event.ErrInvalidCapacity,
		event.ErrCapacityBelowSold,
		event.ErrInvalidPrice,
		event.ErrInvalidEventTime,
		ticket.ErrInvalidQuantity,
		ticket.ErrUnknownStatus,
		ticket.ErrEventIDRequired,
		ticket.ErrUserIDRequired,
		ticket.ErrCredentialRequired,
	}
)

// classify はドメイン・インフラのエラーを *Error に変換する。
// 既に *Error の場合はそのまま返す。
func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var capErr *event.CapacityError
	if errors.As(err, &capErr) {
		available := capErr.Available
		return &Error{Kind: KindCapacityExceeded, Message: capErr.Error(), Available: &available, Err: err}
	}
	// 認証コードの形式不正は存在しないコードと同じ扱いにする
	if errors.Is(err, credential.ErrInvalidCredential) {
		return &Error{Kind: KindNotFound, Message: ticket.ErrTicketNotFound.Error(), Err: err}
	}
	if errors.Is(err, ticket.ErrDuplicateHolding) {
		return &Error{Kind: KindDuplicateHolding, Message: ticket.ErrDuplicateHolding.Error(), Err: err}
	}
	if errors.Is(err, ErrForbidden) {
		return &Error{Kind: KindForbidden, Message: ErrForbidden.Error(), Err: err}
	}
	if errors.Is(err, redisinfra.ErrLockNotAcquired) {
		return &Error{Kind: KindUnavailable, Message: "同じ購入が処理中です。しばらくしてから再度お試しください", Err: err}
	}
	for _, k := range []struct {
		kind Kind
		errs []error
	}{
		{KindNotFound, notFoundErrors},
		{KindInvalidState, invalidStateErrors},
		{KindValidation, validationErrors},
	} {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return &Error{Kind: k.kind, Message: target.Error(), Err: err}
			}
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUnavailable, Message: "処理がタイムアウトしました", Err: err}
	}
	return &Error{Kind: KindUnavailable, Message: unavailableMessage, Err: err}
}

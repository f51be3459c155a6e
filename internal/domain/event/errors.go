package event

import (
	"errors"
	"fmt"
)

// Event ドメインのエラー定義
var (
	ErrEventNotFound           = errors.New("イベントが見つかりません")
	ErrOrganizerRequired       = errors.New("主催者IDは必須です")
	ErrEventTitleRequired      = errors.New("イベント名は必須です")
	ErrInvalidCapacity         = errors.New("定員は1以上50000以下である必要があります")
	ErrCapacityBelowSold       = errors.New("定員は販売済み枚数以上である必要があります")
	ErrInvalidPrice            = errors.New("価格は0以上である必要があります")
	ErrInvalidEventTime        = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrEventNotOnSale          = errors.New("イベントは販売中ではありません")
	ErrInvalidStatusTransition = errors.New("イベントの状態を変更できません")
	ErrEventLocked             = errors.New("チケット販売後は日時・会場・定員を変更できません")
	ErrEventHasSales           = errors.New("販売済みのイベントは削除できません。中止してください")
	ErrCapacityExceeded        = errors.New("残席が不足しています")
	ErrOptimisticLockConflict  = errors.New("楽観的ロックの競合が発生しました")
)

// CapacityError は在庫不足で予約が拒否されたことを表す。
// Available には拒否された時点の残数が入る。
type CapacityError struct {
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("残り%d枚のため%d枚は購入できません", e.Available, e.Requested)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

package ticket

import "errors"

// Ticket ドメインのエラー定義
var (
	ErrTicketNotFound     = errors.New("チケットが見つかりません")
	ErrAlreadyUsed        = errors.New("チケットは既に使用済みです")
	ErrNotValidForCheckIn = errors.New("このチケットでは入場できません")
	ErrCannotCancelUsed   = errors.New("使用済みのチケットはキャンセルできません")
	ErrAlreadyClosed      = errors.New("チケットは既にキャンセルまたは返金済みです")
	ErrInvalidTransition  = errors.New("チケットの状態を変更できません")
	ErrUnknownStatus      = errors.New("不明なチケット状態です")
	ErrInvalidQuantity    = errors.New("購入枚数は1枚以上10枚以下である必要があります")
	ErrDuplicateHolding   = errors.New("このイベントのチケットは既に保有しています")
	ErrCredentialConflict = errors.New("認証コードが重複しました")
	ErrStatusConflict     = errors.New("チケットの状態が他の処理で変更されました")
	ErrCheckInBeforeEvent = errors.New("イベント当日より前は入場受付できません")
	ErrEventIDRequired    = errors.New("イベントIDは必須です")
	ErrUserIDRequired     = errors.New("ユーザーIDは必須です")
	ErrCredentialRequired = errors.New("認証コードは必須です")
)

package ticket

import (
	"context"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
)

// ListFilter はチケット一覧の取得条件
type ListFilter struct {
	Status Status // 空なら全状態
	Limit  int
	Offset int
}

// Page は一覧取得の結果と総件数
type Page struct {
	Tickets []*Ticket
	Total   int
}

// Repository はチケットリポジトリのインターフェース
type Repository interface {
	// Create はチケットを作成する（トランザクション必須）
	// 認証コードが既存チケットと重複した場合は ErrCredentialConflict を返し、何も書き込まない
	Create(ctx context.Context, tx transaction.Tx, t *Ticket) error

	// GetByID はIDからチケットを取得する
	GetByID(ctx context.Context, id string) (*Ticket, error)

	// GetByCredential は認証コードからチケットを取得する
	GetByCredential(ctx context.Context, credential string) (*Ticket, error)

	// HasActiveHolding はユーザーがイベントの有効・使用済みチケットを保有しているかを返す
	// tx が nil の場合はトランザクション外で確認する
	HasActiveHolding(ctx context.Context, tx transaction.Tx, eventID, userID string) (bool, error)

	// ListByUser はユーザーのチケット一覧を取得する
	ListByUser(ctx context.Context, userID string, filter ListFilter) (*Page, error)

	// ListByEvent はイベントのチケット一覧を取得する
	ListByEvent(ctx context.Context, eventID string, filter ListFilter) (*Page, error)

	// CountByStatus はイベントの状態別チケット数を取得する
	CountByStatus(ctx context.Context, eventID string) (map[Status]int, error)

	// UpdateStatus は状態が from のままの場合に限りチケットの状態を更新する（トランザクション必須）
	// 他の処理が先に状態を変えていた場合は ErrStatusConflict を返す
	UpdateStatus(ctx context.Context, tx transaction.Tx, t *Ticket, from Status) error
}

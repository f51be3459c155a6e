package event

import (
	"context"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
)

// ListFilter はイベント一覧の取得条件
type ListFilter struct {
	Status      Status // 空なら全状態
	OrganizerID string // 空なら全主催者
	Limit       int
	Offset      int
}

// Repository はイベントリポジトリのインターフェース
type Repository interface {
	// Create は新しいイベントを作成する
	Create(ctx context.Context, event *Event) error

	// GetByID はIDからイベントを取得する
	GetByID(ctx context.Context, id string) (*Event, error)

	// List はイベント一覧を取得する
	List(ctx context.Context, filter ListFilter) ([]*Event, error)

	// Update はイベントを更新する（楽観的ロック、販売枚数は更新しない）
	Update(ctx context.Context, event *Event) error

	// Delete はイベントを削除する（販売済みの場合は ErrEventHasSales）
	Delete(ctx context.Context, id string) error

	// ReserveCapacity は販売枚数を quantity だけ条件付きで加算し、加算後の販売枚数を返す（トランザクション必須）
	// 拒否時は ErrEventNotFound / ErrEventNotOnSale / *CapacityError を返す
	ReserveCapacity(ctx context.Context, tx transaction.Tx, eventID string, quantity int) (int, error)

	// RecountSold は有効・使用済みチケット数から販売枚数を再計算する（トランザクション必須）
	RecountSold(ctx context.Context, tx transaction.Tx, eventID string) (int, error)

	// ReconcileSold は全イベントの販売枚数を再計算し、補正したイベント数を返す
	ReconcileSold(ctx context.Context) (int, error)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/event"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
)

// PostgreSQL のエラーコード
const (
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// validID はUUIDとして解釈できるIDかを返す。不正なIDはDBに問い合わせずに未検出として扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const eventColumns = `id, organizer_id, title, description, venue, start_at, end_at, capacity, tickets_sold, price, status, created_at, updated_at, version`

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID          string          `db:"id"`
	OrganizerID string          `db:"organizer_id"`
	Title       string          `db:"title"`
	Description *string         `db:"description"`
	Venue       *string         `db:"venue"`
	StartAt     time.Time       `db:"start_at"`
	EndAt       time.Time       `db:"end_at"`
	Capacity    int             `db:"capacity"`
	TicketsSold int             `db:"tickets_sold"`
	Price       decimal.Decimal `db:"price"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	Version     int             `db:"version"`
}

func (r *eventRow) toEntity() *event.Event {
	var desc, venue string
	if r.Description != nil {
		desc = *r.Description
	}
	if r.Venue != nil {
		venue = *r.Venue
	}
	return &event.Event{
		ID:          r.ID,
		OrganizerID: r.OrganizerID,
		Title:       r.Title,
		Description: desc,
		Venue:       venue,
		StartAt:     r.StartAt,
		EndAt:       r.EndAt,
		Capacity:    r.Capacity,
		TicketsSold: r.TicketsSold,
		Price:       r.Price,
		Status:      event.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントを作成し、採番されたIDとバージョンを e に設定する
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO events (organizer_id, title, description, venue, start_at, end_at, capacity, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, version
	`
	err := r.db.QueryRowxContext(ctx, query,
		e.OrganizerID, e.Title, nullable(e.Description), nullable(e.Venue),
		e.StartAt, e.EndAt, e.Capacity, e.Price, string(e.Status), e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID, &e.Version)
	if err != nil {
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	if !validID(id) {
		return nil, event.ErrEventNotFound
	}
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	return row.toEntity(), nil
}

// List は条件に合うイベントを開始日時の昇順で取得する
func (r *EventRepository) List(ctx context.Context, filter event.ListFilter) ([]*event.Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OrganizerID != "" {
		args = append(args, filter.OrganizerID)
		conds = append(conds, fmt.Sprintf("organizer_id = $%d", len(args)))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY start_at ASC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}

	events := make([]*event.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEntity()
	}
	return events, nil
}

// Update はイベントを更新する（楽観的ロック）。販売枚数は更新しない。
func (r *EventRepository) Update(ctx context.Context, e *event.Event) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, venue = $3, start_at = $4, end_at = $5,
		    capacity = $6, price = $7, status = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11
	`
	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		e.Title, nullable(e.Description), nullable(e.Venue), e.StartAt, e.EndAt,
		e.Capacity, e.Price, string(e.Status), now, e.ID, e.Version,
	)
	if err != nil {
		// 同時に販売枚数が増えて定員を下回った
		if pgCode(err) == codeCheckViolation {
			return event.ErrCapacityBelowSold
		}
		return fmt.Errorf("イベント更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return err
		}
		return event.ErrOptimisticLockConflict
	}

	e.Version++
	e.UpdatedAt = now
	return nil
}

// Delete は販売実績のないイベントを削除する
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return event.ErrEventNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1 AND tickets_sold = 0`, id)
	if err != nil {
		// キャンセル済みのチケットが残っている
		if pgCode(err) == codeForeignKeyViolation {
			return event.ErrEventHasSales
		}
		return fmt.Errorf("イベント削除に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return event.ErrEventHasSales
	}
	return nil
}

// ReserveCapacity は販売枚数を条件付きで加算する。
// 更新と同時に行ロックを取るため、同じイベントの購入はコミットまで直列化される。
func (r *EventRepository) ReserveCapacity(ctx context.Context, tx transaction.Tx, eventID string, quantity int) (int, error) {
	if !validID(eventID) {
		return 0, event.ErrEventNotFound
	}
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE events
		SET tickets_sold = tickets_sold + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = 'published' AND tickets_sold + $1 <= capacity
		RETURNING tickets_sold
	`
	var sold int
	err = sqlxTx.QueryRowxContext(ctx, query, quantity, eventID).Scan(&sold)
	if err == nil {
		return sold, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("在庫の確保に失敗しました: %w", err)
	}

	// 拒否された理由を調べる
	var current struct {
		Status      string `db:"status"`
		Capacity    int    `db:"capacity"`
		TicketsSold int    `db:"tickets_sold"`
	}
	err = sqlxTx.GetContext(ctx, &current, `SELECT status, capacity, tickets_sold FROM events WHERE id = $1`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, event.ErrEventNotFound
		}
		return 0, fmt.Errorf("在庫の確認に失敗しました: %w", err)
	}
	if event.Status(current.Status) != event.StatusPublished {
		return 0, event.ErrEventNotOnSale
	}
	available := current.Capacity - current.TicketsSold
	if available < 0 {
		available = 0
	}
	return 0, &event.CapacityError{Requested: quantity, Available: available}
}

const countActiveTickets = `SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND status IN ('valid', 'used')`

// lockEvent はイベント行をロックする。以降の文は他の購入のコミット結果を含めて集計できる。
func lockEvent(ctx context.Context, tx *sqlx.Tx, eventID string) (int, error) {
	var sold int
	err := tx.GetContext(ctx, &sold, `SELECT tickets_sold FROM events WHERE id = $1 FOR UPDATE`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, event.ErrEventNotFound
		}
		return 0, fmt.Errorf("イベントのロックに失敗しました: %w", err)
	}
	return sold, nil
}

// RecountSold は有効・使用済みチケット数を販売枚数として保存する
func (r *EventRepository) RecountSold(ctx context.Context, tx transaction.Tx, eventID string) (int, error) {
	if !validID(eventID) {
		return 0, event.ErrEventNotFound
	}
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return 0, err
	}
	if _, err := lockEvent(ctx, sqlxTx, eventID); err != nil {
		return 0, err
	}
	query := `
		UPDATE events
		SET tickets_sold = (` + countActiveTickets + `), version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING tickets_sold
	`
	var sold int
	if err := sqlxTx.QueryRowxContext(ctx, query, eventID).Scan(&sold); err != nil {
		return 0, fmt.Errorf("販売枚数の再計算に失敗しました: %w", err)
	}
	return sold, nil
}

// ReconcileSold は販売枚数がチケットの集計とずれているイベントを補正し、補正した件数を返す。
// イベントごとに行ロックを取ってから集計するため、購入処理と並行して実行できる。
func (r *EventRepository) ReconcileSold(ctx context.Context) (int, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM events WHERE status <> 'draft' ORDER BY id`); err != nil {
		return 0, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}

	fixed := 0
	for _, id := range ids {
		changed, err := r.reconcileOne(ctx, id)
		if err != nil {
			return fixed, err
		}
		if changed {
			fixed++
		}
	}
	return fixed, nil
}

func (r *EventRepository) reconcileOne(ctx context.Context, eventID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	stored, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			return false, nil
		}
		return false, err
	}
	var actual int
	if err := tx.GetContext(ctx, &actual, countActiveTickets, eventID); err != nil {
		return false, fmt.Errorf("チケットの集計に失敗しました: %w", err)
	}
	if actual == stored {
		return false, nil
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE events SET tickets_sold = $1, version = version + 1, updated_at = NOW() WHERE id = $2`,
		actual, eventID)
	if err != nil {
		return false, fmt.Errorf("販売枚数の補正に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("コミットに失敗: %w", err)
	}
	return true, nil
}

var _ event.Repository = (*EventRepository)(nil)

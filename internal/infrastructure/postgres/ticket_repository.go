package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/ticket"
	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
)

const ticketColumns = `id, event_id, user_id, price, credential, status, check_in_time, purchase_reference, created_at, updated_at`

type ticketRow struct {
	ID                string          `db:"id"`
	EventID           string          `db:"event_id"`
	UserID            string          `db:"user_id"`
	Price             decimal.Decimal `db:"price"`
	Credential        string          `db:"credential"`
	Status            string          `db:"status"`
	CheckInTime       *time.Time      `db:"check_in_time"`
	PurchaseReference string          `db:"purchase_reference"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r *ticketRow) toEntity() *ticket.Ticket {
	return ticket.Rehydrate(ticket.Snapshot{
		ID:                r.ID,
		EventID:           r.EventID,
		UserID:            r.UserID,
		Price:             r.Price,
		Credential:        r.Credential,
		Status:            ticket.Status(r.Status),
		CheckInTime:       r.CheckInTime,
		PurchaseReference: r.PurchaseReference,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	})
}

// TicketRepository はチケットリポジトリのPostgreSQL実装
type TicketRepository struct {
	db *sqlx.DB
}

func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create はチケットを保存する。認証コードが既存のチケットと重複した場合は何も書き込まない。
func (r *TicketRepository) Create(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tickets (id, event_id, user_id, price, credential, status, check_in_time, purchase_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (credential) DO NOTHING
	`
	result, err := sqlxTx.ExecContext(ctx, query,
		t.ID, t.EventID, t.UserID, t.Price, t.Credential, string(t.Status()), t.CheckInTime(),
		t.PurchaseReference, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("チケット作成に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("作成結果の確認に失敗しました: %w", err)
	}
	if rows == 0 {
		return ticket.ErrCredentialConflict
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	if !validID(id) {
		return nil, ticket.ErrTicketNotFound
	}
	return r.getBy(ctx, "id", id)
}

func (r *TicketRepository) GetByCredential(ctx context.Context, credential string) (*ticket.Ticket, error) {
	return r.getBy(ctx, "credential", credential)
}

func (r *TicketRepository) getBy(ctx context.Context, column, value string) (*ticket.Ticket, error) {
	var row ticketRow
	err := r.db.GetContext(ctx, &row, `SELECT `+ticketColumns+` FROM tickets WHERE `+column+` = $1`, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, fmt.Errorf("チケット取得に失敗しました: %w", err)
	}
	return row.toEntity(), nil
}

// HasActiveHolding はユーザーがイベントの有効・使用済みチケットを持っているかを返す
func (r *TicketRepository) HasActiveHolding(ctx context.Context, tx transaction.Tx, eventID, userID string) (bool, error) {
	if !validID(eventID) {
		return false, nil
	}
	q, err := execer(r.db, tx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = q.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE event_id = $1 AND user_id = $2 AND status IN ('valid', 'used')
		)`, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("保有チケットの確認に失敗しました: %w", err)
	}
	return exists, nil
}

func (r *TicketRepository) ListByUser(ctx context.Context, userID string, filter ticket.ListFilter) (*ticket.Page, error) {
	return r.listBy(ctx, "user_id", userID, filter)
}

func (r *TicketRepository) ListByEvent(ctx context.Context, eventID string, filter ticket.ListFilter) (*ticket.Page, error) {
	if !validID(eventID) {
		return &ticket.Page{Tickets: []*ticket.Ticket{}}, nil
	}
	return r.listBy(ctx, "event_id", eventID, filter)
}

// listBy は column = value のチケットを新しい順に取得する。総件数はページングに関係なく数える。
func (r *TicketRepository) listBy(ctx context.Context, column, value string, filter ticket.ListFilter) (*ticket.Page, error) {
	where := ` WHERE ` + column + ` = $1`
	args := []interface{}{value}
	if filter.Status != "" {
		where += ` AND status = $2`
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tickets`+where, args...); err != nil {
		return nil, fmt.Errorf("チケット件数の取得に失敗しました: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		ticketColumns, where, len(args)+1, len(args)+2)
	var rows []ticketRow
	if err := r.db.SelectContext(ctx, &rows, query, append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, fmt.Errorf("チケット一覧取得に失敗しました: %w", err)
	}

	tickets := make([]*ticket.Ticket, len(rows))
	for i := range rows {
		tickets[i] = rows[i].toEntity()
	}
	return &ticket.Page{Tickets: tickets, Total: total}, nil
}

// CountByStatus はイベントの状態別チケット数を返す。0枚の状態は含まない。
func (r *TicketRepository) CountByStatus(ctx context.Context, eventID string) (map[ticket.Status]int, error) {
	counts := make(map[ticket.Status]int)
	if !validID(eventID) {
		return counts, nil
	}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM tickets WHERE event_id = $1 GROUP BY status`, eventID)
	if err != nil {
		return nil, fmt.Errorf("状態別チケット数の取得に失敗しました: %w", err)
	}
	for _, row := range rows {
		counts[ticket.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// UpdateStatus は状態が from のままの場合だけチケットの状態を書き換える
func (r *TicketRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, t *ticket.Ticket, from ticket.Status) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `
		UPDATE tickets
		SET status = $1, check_in_time = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(t.Status()), t.CheckInTime(), t.UpdatedAt, t.ID, string(from))
	if err != nil {
		return fmt.Errorf("チケットの状態更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := sqlxTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, t.ID); err != nil {
			return fmt.Errorf("チケットの確認に失敗しました: %w", err)
		}
		if !exists {
			return ticket.ErrTicketNotFound
		}
		return ticket.ErrStatusConflict
	}
	return nil
}

var _ ticket.Repository = (*TicketRepository)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-ticketing/internal/domain/transaction"
)

var errForeignTx = errors.New("PostgreSQL以外のトランザクションが渡されました")

// TxWrapper は sqlx.Tx を transaction.Tx として扱う
type TxWrapper struct {
	*sqlx.Tx
}

func (t *TxWrapper) Commit() error {
	return t.Tx.Commit()
}

// Rollback はトランザクションをロールバックする。コミット済みの場合は何もしない。
func (t *TxWrapper) Rollback() error {
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &TxWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
func UnwrapTx(tx transaction.Tx) (*sqlx.Tx, error) {
	wrapper, ok := tx.(*TxWrapper)
	if !ok || wrapper == nil {
		return nil, errForeignTx
	}
	return wrapper.Tx, nil
}

// executor は sqlx.DB と sqlx.Tx の共通部分
type executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// execer は tx があればそのトランザクションを、なければ db を返す
func execer(db *sqlx.DB, tx transaction.Tx) (executor, error) {
	if tx == nil {
		return db, nil
	}
	return UnwrapTx(tx)
}

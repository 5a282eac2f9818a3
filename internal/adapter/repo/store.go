package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aq2208/storefront-api/internal/usecase"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements usecase.Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) Products() usecase.ProductRepo {
	return &MySQLProductRepo{q: s.db}
}

func (s *SQLStore) Orders() usecase.OrderRepo {
	return &MySQLOrderRepo{q: s.db, db: s.db}
}

func (s *SQLStore) Notifications() usecase.NotificationRepo {
	return NewMySQLNotificationRepo(s.db)
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx usecase.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(sqlTx{tx: tx, lock: s.lockClause()}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// lockClause is appended to reads inside a transaction. SQLite serializes
// writers on its own and has no row locks.
func (s *SQLStore) lockClause() string {
	if s.dialect == DialectMySQL {
		return " FOR UPDATE"
	}
	return ""
}

type sqlTx struct {
	tx   *sql.Tx
	lock string
}

func (t sqlTx) Products() usecase.ProductRepo { return &MySQLProductRepo{q: t.tx, lock: t.lock} }
func (t sqlTx) Orders() usecase.OrderRepo     { return &MySQLOrderRepo{q: t.tx, lock: t.lock} }

var _ usecase.Store = (*SQLStore)(nil)

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
)

type MySQLNotificationRepo struct{ db *sql.DB }

func NewMySQLNotificationRepo(db *sql.DB) *MySQLNotificationRepo {
	return &MySQLNotificationRepo{db: db}
}

func (r *MySQLNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	var meta any
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id,user_id,order_id,type,title,message,is_read,metadata_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, n.ID, n.UserID, n.OrderID, string(n.Type), n.Title, n.Message, n.Read, meta, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *MySQLNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	query := `
SELECT id,user_id,order_id,type,title,message,is_read,metadata_json,created_at
FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*domain.Notification{}
	for rows.Next() {
		var (
			n    domain.Notification
			typ  string
			meta []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &typ, &n.Title, &n.Message, &n.Read, &meta, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *MySQLNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id=? AND is_read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MySQLNotificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	rows, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	// already read, or not this user's
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE id=? AND user_id=?`, id, userID).Scan(&n); err != nil {
		return fmt.Errorf("check notification: %w", err)
	}
	if n == 0 {
		return &usecase.NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

func (r *MySQLNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id=? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	rows, err := rowsAffected(res)
	return int(rows), err
}

func (r *MySQLNotificationRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	rows, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if rows == 0 {
		return &usecase.NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

var _ usecase.NotificationRepo = (*MySQLNotificationRepo)(nil)

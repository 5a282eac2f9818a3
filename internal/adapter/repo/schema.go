package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite3"
)

// tables are written in the subset of SQL both MySQL and SQLite accept.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS products (
    id             VARCHAR(36)   NOT NULL PRIMARY KEY,
    name           VARCHAR(255)  NOT NULL,
    description    TEXT          NOT NULL,
    category       VARCHAR(100)  NOT NULL,
    price          DECIMAL(12,2) NOT NULL,
    stock_quantity INT           NOT NULL,
    status         VARCHAR(20)   NOT NULL,
    created_at     DATETIME      NOT NULL,
    updated_at     DATETIME      NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id            VARCHAR(36)   NOT NULL PRIMARY KEY,
    user_id       VARCHAR(64)   NOT NULL,
    status        VARCHAR(20)   NOT NULL,
    total_amount  DECIMAL(12,2) NOT NULL,
    shipping_json TEXT          NOT NULL,
    note          TEXT          NOT NULL,
    cancel_reason TEXT          NOT NULL,
    payment_json  TEXT          NULL,
    version       BIGINT        NOT NULL,
    created_at    DATETIME      NOT NULL,
    updated_at    DATETIME      NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS order_items (
    order_id   VARCHAR(36)   NOT NULL,
    line_no    INT           NOT NULL,
    product_id VARCHAR(36)   NOT NULL,
    name       VARCHAR(255)  NOT NULL,
    quantity   INT           NOT NULL,
    unit_price DECIMAL(12,2) NOT NULL,
    PRIMARY KEY (order_id, line_no)
)`,
	`CREATE TABLE IF NOT EXISTS notifications (
    id            VARCHAR(36)  NOT NULL PRIMARY KEY,
    user_id       VARCHAR(64)  NOT NULL,
    order_id      VARCHAR(36)  NOT NULL,
    type          VARCHAR(32)  NOT NULL,
    title         VARCHAR(255) NOT NULL,
    message       TEXT         NOT NULL,
    is_read       BOOLEAN      NOT NULL DEFAULT 0,
    metadata_json TEXT         NULL,
    created_at    DATETIME     NOT NULL
)`,
}

var indexes = []struct{ name, on string }{
	{"idx_products_category", "products (category)"},
	{"idx_orders_user_created", "orders (user_id, created_at)"},
	{"idx_orders_status", "orders (status)"},
	{"idx_order_items_product", "order_items (product_id)"},
	{"idx_notifications_user_created", "notifications (user_id, created_at)"},
}

// mysqlDupKeyName is ER_DUP_KEYNAME, returned when an index already exists.
const mysqlDupKeyName = 1061

// Migrate creates the schema if it is missing. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, ddl := range tables {
		if d == DialectMySQL {
			ddl += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
		}
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	for _, ix := range indexes {
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s", ix.name, ix.on)
		if d == DialectSQLite {
			stmt = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s", ix.name, ix.on)
		}
		_, err := db.ExecContext(ctx, stmt)
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDupKeyName {
			continue
		}
		if err != nil {
			return fmt.Errorf("migrate index %s: %w", ix.name, err)
		}
	}
	return nil
}

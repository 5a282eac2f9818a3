package usecase

import (
	"context"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/shopspring/decimal"
)

type ProductSort string

const (
	SortNewest    ProductSort = "newest"
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortName      ProductSort = "name"
)

// ProductFilter drives catalog search. Query is a case-insensitive substring
// matched against name and description.
type ProductFilter struct {
	Query    string
	Category string
	Status   domain.ProductStatus
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     ProductSort
	Limit    int
	Offset   int
}

type OrderFilter struct {
	UserID string
	Status domain.Status
	Limit  int
	Offset int
}

type ProductRepo interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// Update writes every mutable field, stock and status included.
	Update(ctx context.Context, p *domain.Product) error
	// AdjustStock adds delta to the stock quantity. It refuses with
	// *InsufficientStockError when the result would be negative and returns
	// the product as stored after the change.
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
	Search(ctx context.Context, f ProductFilter) ([]*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, f OrderFilter) ([]*domain.Order, error)
	// UpdateStatus persists Status and CancelReason if the stored version
	// still equals expectedVersion, then bumps o.Version. A stale write
	// returns ErrVersionConflict.
	UpdateStatus(ctx context.Context, o *domain.Order, expectedVersion int64) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
	CountByProduct(ctx context.Context, productID string) (int, error)
}

type NotificationRepo interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

// Tx exposes the repositories bound to one storage transaction.
type Tx interface {
	Products() ProductRepo
	Orders() OrderRepo
}

// Store is the explicitly constructed storage handle passed to every use case.
type Store interface {
	Products() ProductRepo
	Orders() OrderRepo
	Notifications() NotificationRepo
	// WithinTx runs fn in a transaction; any error rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// NotificationDraft is what the lifecycle hands to the sink.
type NotificationDraft struct {
	Type     domain.NotificationType
	Title    string
	Message  string
	OrderID  string
	Metadata map[string]any
}

type NotificationSink interface {
	Emit(ctx context.Context, userID string, n NotificationDraft) error
}

// OrderLocker serializes lifecycle work on one order across processes.
type OrderLocker interface {
	Lock(ctx context.Context, orderID string) (unlock func(), err error)
}

type OrderCache interface {
	SetStatus(ctx context.Context, orderID string, status string) error
	// SetStatusIfAbsent fills a miss without overwriting a value written since.
	SetStatusIfAbsent(ctx context.Context, orderID string, status string) error
	GetStatus(ctx context.Context, orderID string) (string, error)
	DeleteStatus(ctx context.Context, orderID string) error
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
	Release(ctx context.Context, scope, key string) error
}

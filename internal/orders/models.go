package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"order_id"`
	ExternalID      string          `json:"external_id,omitempty"`
	UserID          string          `json:"user_id"`
	BusinessID      int64           `json:"business_id"`
	Total           decimal.Decimal `json:"total_amount"`
	PaymentStatus   string          `json:"payment_status"`
	OrderStatus     Status          `json:"order_status"`
	PaymentDate     *time.Time      `json:"payment_date,omitempty"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	Items           []Item          `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Item is the price snapshot of one purchased unit.
type Item struct {
	SizeID    int64           `json:"size_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PaymentContext is an order with the payer and seller details the gateway
// request needs.
type PaymentContext struct {
	Order        Order
	FirstName    string
	LastName     string
	Email        string
	BusinessName string
}

// SnapshotLine is a cart line re-read inside the checkout transaction. Unit is
// nil when its size row no longer exists.
type SnapshotLine struct {
	CartItemID int64
	SizeID     int64
	Quantity   int
	Unit       *catalog.Unit
}

// Transition is the payment outcome written by reconciliation.
type Transition struct {
	PaymentStatus string
	OrderStatus   Status
	PaymentDate   time.Time
}

// BuildFunc turns a locked cart snapshot into the order to insert and the
// cart item ids it consumes.
type BuildFunc func(lines []SnapshotLine) (Order, []int64, error)

// DecideFunc inspects a locked order and returns the transition to write, or
// nil to leave it unchanged.
type DecideFunc func(o Order) (*Transition, error)

type Store interface {
	// FreezeCart locks the user's cart and, in one transaction, inserts the
	// order build returns and deletes the consumed lines. With a non-empty
	// externalID an order already created under that key is returned instead
	// and existed is true.
	FreezeCart(ctx context.Context, userID, externalID string, build BuildFunc) (o Order, existed bool, err error)
	// Insert stores an order built outside a cart, honouring ExternalID the
	// same way.
	Insert(ctx context.Context, o Order) (stored Order, existed bool, err error)
	Get(ctx context.Context, id string) (Order, error)
	PaymentContext(ctx context.Context, id string) (PaymentContext, error)
	// Reconcile locks the order row for the duration of decide and the write.
	Reconcile(ctx context.Context, id string, decide DecideFunc) (o Order, applied bool, err error)
}

// Package cart keeps each shopper's mutable cart: one line per inventory unit,
// quantities merged on repeated adds.
package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Line is a stored cart row.
type Line struct {
	ID       int64 `json:"cart_item_id"`
	CartID   int64 `json:"cart_id"`
	SizeID   int64 `json:"size_id"`
	Quantity int   `json:"quantity"`
}

// Item is a cart line joined with its product and variant for display.
type Item struct {
	CartItemID  int64           `json:"cart_item_id"`
	SizeID      int64           `json:"size_id"`
	ProductID   int64           `json:"product_id"`
	BusinessID  int64           `json:"business_id"`
	ProductName string          `json:"product_name"`
	Size        string          `json:"size"`
	ColorID     *int64          `json:"color_id,omitempty"`
	ColorName   string          `json:"color_name,omitempty"`
	Price       decimal.Decimal `json:"product_price"`
	Quantity    int             `json:"quantity"`
	Stock       int             `json:"stock"`
}

type AddInput struct {
	ProductID int64
	Quantity  int
	Size      string
	ColorID   *int64
}

// Repo persists carts. AddLine must merge into an existing line for the same
// size atomically; RemoveLine and Clear succeed when nothing matches.
type Repo interface {
	AddLine(ctx context.Context, userID string, sizeID int64, qty int) (Line, error)
	SetQuantity(ctx context.Context, userID string, itemID int64, qty int) error
	RemoveLine(ctx context.Context, userID string, itemID int64) error
	Clear(ctx context.Context, userID string) error
	Items(ctx context.Context, userID string) ([]Item, error)
}

// Package catalog resolves a shopper's product selection to the inventory
// unit (product_size row) that carts and orders reference.
package catalog

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

// Selection is what the product page submits: a product, a size and, for
// products sold in several colors, the chosen color.
type Selection struct {
	ProductID int64
	Size      string
	ColorID   *int64
}

// Unit is a purchasable size/color variant of a product.
type Unit struct {
	SizeID      int64
	ProductID   int64
	BusinessID  int64
	ProductName string
	Size        string
	ColorID     *int64
	Stock       int
	Price       decimal.Decimal
}

// MaxQuantity caps how many units of one size a cart line or order line may
// hold. It keeps merged quantities well inside a Postgres INT.
const MaxQuantity = 10_000

type Resolver interface {
	Resolve(ctx context.Context, sel Selection) (Unit, error)
}

// Validate checks the mandatory parts of a selection.
func (s Selection) Validate() error {
	if s.ProductID <= 0 {
		return apperr.Invalid("productId is required")
	}
	if strings.TrimSpace(s.Size) == "" {
		return apperr.Invalid("size is required")
	}
	if s.ColorID != nil && *s.ColorID <= 0 {
		return apperr.Invalid("colorId must be positive")
	}
	return nil
}

package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CheckoutInput struct {
	UserID string
	// BusinessID selects which seller's lines to buy when the cart holds
	// several; zero means the cart must hold exactly one seller.
	BusinessID      int64
	ShippingFee     decimal.Decimal
	ShippingAddress string
	IdempotencyKey  string
}

type BuyNowInput struct {
	UserID          string
	ProductID       int64
	Quantity        int
	Size            string
	ColorID         *int64
	ShippingFee     decimal.Decimal
	ShippingAddress string
	IdempotencyKey  string
}

// Factory freezes carts and buy-now requests into orders.
type Factory struct {
	store    Store
	resolver catalog.Resolver
	now      func() time.Time
	newID    func() string
}

func NewFactory(store Store, resolver catalog.Resolver) *Factory {
	return &Factory{
		store:    store,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Checkout converts the user's cart into a pending order. Lines are re-read
// and re-priced under the cart lock; the order insert and the removal of the
// frozen lines commit together.
func (f *Factory) Checkout(ctx context.Context, in CheckoutInput) (Order, bool, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return Order{}, false, apperr.Invalid("user id is required")
	}
	if in.ShippingFee.IsNegative() {
		return Order{}, false, apperr.Invalid("shipping fee must not be negative")
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	build := func(lines []SnapshotLine) (Order, []int64, error) {
		if len(lines) == 0 {
			return Order{}, nil, apperr.Invalid("cart is empty")
		}
		sellers := map[int64]bool{}
		for _, l := range lines {
			if l.Unit == nil {
				return Order{}, nil, apperr.NotFound(fmt.Sprintf("cart item %d is no longer available", l.CartItemID))
			}
			sellers[l.Unit.BusinessID] = true
		}

		businessID := in.BusinessID
		if businessID == 0 {
			if len(sellers) > 1 {
				return Order{}, nil, apperr.Invalid("cart holds items from several businesses; choose one to check out")
			}
			for id := range sellers {
				businessID = id
			}
		}

		var (
			items    []Item
			consumed []int64
		)
		for _, l := range lines {
			if l.Unit.BusinessID != businessID {
				continue
			}
			if err := checkStock(*l.Unit, l.Quantity); err != nil {
				return Order{}, nil, err
			}
			items = append(items, Item{SizeID: l.SizeID, ProductID: l.Unit.ProductID, Quantity: l.Quantity, UnitPrice: l.Unit.Price})
			consumed = append(consumed, l.CartItemID)
		}
		if len(items) == 0 {
			return Order{}, nil, apperr.Invalid(fmt.Sprintf("cart has no items from business %d", businessID))
		}
		return f.newOrder(in.UserID, businessID, key, in.ShippingAddress, items, in.ShippingFee), consumed, nil
	}

	o, existed, err := f.store.FreezeCart(ctx, in.UserID, key, build)
	if err != nil {
		return Order{}, false, fmt.Errorf("checkout: %w", err)
	}
	return o, existed, nil
}

// BuyNow creates an order for a single unit without touching the cart.
func (f *Factory) BuyNow(ctx context.Context, in BuyNowInput) (Order, bool, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return Order{}, false, apperr.Invalid("user id is required")
	}
	if in.Quantity < 1 {
		return Order{}, false, apperr.Invalid("quantity must be at least 1")
	}
	if in.Quantity > catalog.MaxQuantity {
		return Order{}, false, apperr.Invalid(fmt.Sprintf("quantity must be at most %d", catalog.MaxQuantity))
	}
	if in.ShippingFee.IsNegative() {
		return Order{}, false, apperr.Invalid("shipping fee must not be negative")
	}

	unit, err := f.resolver.Resolve(ctx, catalog.Selection{ProductID: in.ProductID, Size: in.Size, ColorID: in.ColorID})
	if err != nil {
		return Order{}, false, err
	}
	if err := checkStock(unit, in.Quantity); err != nil {
		return Order{}, false, err
	}

	items := []Item{{SizeID: unit.SizeID, ProductID: unit.ProductID, Quantity: in.Quantity, UnitPrice: unit.Price}}
	o := f.newOrder(in.UserID, unit.BusinessID, strings.TrimSpace(in.IdempotencyKey), in.ShippingAddress, items, in.ShippingFee)

	stored, existed, err := f.store.Insert(ctx, o)
	if err != nil {
		return Order{}, false, fmt.Errorf("buy now: %w", err)
	}
	return stored, existed, nil
}

func (f *Factory) newOrder(userID string, businessID int64, key, address string, items []Item, shipping decimal.Decimal) Order {
	now := f.now()
	return Order{
		ID:              f.newID(),
		ExternalID:      key,
		UserID:          userID,
		BusinessID:      businessID,
		Total:           Total(items, shipping),
		PaymentStatus:   string(StatusPending),
		OrderStatus:     StatusPending,
		ShippingAddress: strings.TrimSpace(address),
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Stock is checked, never decremented, at checkout.
func checkStock(u catalog.Unit, qty int) error {
	if qty > u.Stock {
		return apperr.Invalid(fmt.Sprintf("only %d left of %s (size %s)", u.Stock, u.ProductName, u.Size))
	}
	return nil
}

package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PGRepo struct{ DB *pgxpool.Pool }

// AddLine upserts the cart and the line in one transaction. The conflict
// clause adds to the stored quantity, so two racing adds both count. A merge
// that would pass catalog.MaxQuantity updates nothing and is rejected.
func (r *PGRepo) AddLine(ctx context.Context, userID string, sizeID int64, qty int) (Line, error) {
	var l Line
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var cartID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO cart(user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING cart_id`, userID).Scan(&cartID); err != nil {
			return fmt.Errorf("ensure cart: %w", err)
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO cart_items(cart_id, size_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, size_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			WHERE cart_items.quantity + EXCLUDED.quantity <= $4
			RETURNING cart_item_id, cart_id, size_id, quantity`, cartID, sizeID, qty, catalog.MaxQuantity).
			Scan(&l.ID, &l.CartID, &l.SizeID, &l.Quantity)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Invalid(fmt.Sprintf("a cart line may hold at most %d units", catalog.MaxQuantity))
		}
		return err
	})
	if err != nil {
		return Line{}, fmt.Errorf("add line: %w", err)
	}
	return l, nil
}

func (r *PGRepo) SetQuantity(ctx context.Context, userID string, itemID int64, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_items ci SET quantity = $3
		FROM cart c
		WHERE ci.cart_id = c.cart_id AND c.user_id = $1 AND ci.cart_item_id = $2`, userID, itemID, qty)
	if err != nil {
		return postgres.Classify(fmt.Errorf("set quantity: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("cart item not found")
	}
	return nil
}

func (r *PGRepo) RemoveLine(ctx context.Context, userID string, itemID int64) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items ci USING cart c
		WHERE ci.cart_id = c.cart_id AND c.user_id = $1 AND ci.cart_item_id = $2`, userID, itemID)
	if err != nil {
		return postgres.Classify(fmt.Errorf("remove line: %w", err))
	}
	return nil
}

func (r *PGRepo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items ci USING cart c
		WHERE ci.cart_id = c.cart_id AND c.user_id = $1`, userID)
	if err != nil {
		return postgres.Classify(fmt.Errorf("clear cart: %w", err))
	}
	return nil
}

func (r *PGRepo) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ci.cart_item_id, ci.size_id, ci.quantity, p.product_id, p.business_id, p.product_name,
		       s.size, s.color_id, COALESCE(co.color_name, ''), COALESCE(s.price, p.product_price)::text, s.quantity
		FROM cart c
		JOIN cart_items ci ON ci.cart_id = c.cart_id
		JOIN product_size s ON s.size_id = ci.size_id
		JOIN products p ON p.product_id = s.product_id
		LEFT JOIN colors co ON co.color_id = s.color_id
		WHERE c.user_id = $1
		ORDER BY ci.cart_item_id`, userID)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("list cart: %w", err))
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.CartItemID, &it.SizeID, &it.Quantity, &it.ProductID, &it.BusinessID, &it.ProductName,
			&it.Size, &it.ColorID, &it.ColorName, &price, &it.Stock); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of size %d: %w", it.SizeID, err)
		}
		out = append(out, it)
	}
	return out, postgres.Classify(rows.Err())
}

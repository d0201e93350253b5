package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the read side of *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGResolver struct{ DB Querier }

// Without a color several rows may share (product, size); the lowest size_id
// wins so the choice is stable.
const resolveSQL = `
	SELECT s.size_id, p.product_id, p.business_id, p.product_name, s.size, s.color_id,
	       s.quantity, COALESCE(s.price, p.product_price)::text
	FROM product_size s
	JOIN products p ON p.product_id = s.product_id
	WHERE p.product_id = $1 AND s.size = $2 AND ($3::bigint IS NULL OR s.color_id = $3)
	ORDER BY s.size_id
	LIMIT 1`

func (r *PGResolver) Resolve(ctx context.Context, sel Selection) (Unit, error) {
	if err := sel.Validate(); err != nil {
		return Unit{}, err
	}

	var (
		u     Unit
		price string
	)
	err := r.DB.QueryRow(ctx, resolveSQL, sel.ProductID, strings.TrimSpace(sel.Size), sel.ColorID).
		Scan(&u.SizeID, &u.ProductID, &u.BusinessID, &u.ProductName, &u.Size, &u.ColorID, &u.Stock, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, apperr.NotFound("product size not found")
	}
	if err != nil {
		return Unit{}, postgres.Classify(fmt.Errorf("resolve product %d size %q: %w", sel.ProductID, sel.Size, err))
	}
	if u.Price, err = decimal.NewFromString(price); err != nil {
		return Unit{}, fmt.Errorf("parse price of size %d: %w", u.SizeID, err)
	}
	return u, nil
}

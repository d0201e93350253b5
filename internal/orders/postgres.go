package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

const selectOrder = `
	SELECT order_id::text, COALESCE(external_id, ''), user_id, business_id, total_amount::text,
	       payment_status, order_status, payment_date, shipping_address, created_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o      Order
		total  string
		status string
	)
	if err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.BusinessID, &total,
		&o.PaymentStatus, &status, &o.PaymentDate, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.OrderStatus = Status(status)
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("parse total of order %s: %w", o.ID, err)
	}
	o.Total = d
	return o, nil
}

// FreezeCart holds the cart row lock from the snapshot read until commit, so a
// concurrent checkout or add for the same user waits and then sees the result.
func (r *Repo) FreezeCart(ctx context.Context, userID, externalID string, build BuildFunc) (Order, bool, error) {
	var (
		out     Order
		existed bool
	)
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		out, existed = Order{}, false

		var cartID int64
		err := tx.QueryRow(ctx, `SELECT cart_id FROM cart WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock cart: %w", err)
		}

		if externalID != "" {
			prev, err := byExternalID(ctx, tx, userID, externalID)
			if err == nil {
				out, existed = prev, true
				return nil
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
		}

		lines, err := snapshot(ctx, tx, cartID)
		if err != nil {
			return err
		}
		o, consumed, err := build(lines)
		if err != nil {
			return err
		}
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND cart_item_id = ANY($2)`, cartID, consumed); err != nil {
			return fmt.Errorf("remove frozen lines: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	return out, existed, nil
}

func snapshot(ctx context.Context, tx pgx.Tx, cartID int64) ([]SnapshotLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT ci.cart_item_id, ci.size_id, ci.quantity,
		       p.product_id, p.business_id, p.product_name, s.size, s.color_id, s.quantity,
		       COALESCE(s.price, p.product_price)::text
		FROM cart_items ci
		LEFT JOIN product_size s ON s.size_id = ci.size_id
		LEFT JOIN products p ON p.product_id = s.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.cart_item_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	defer rows.Close()

	var lines []SnapshotLine
	for rows.Next() {
		var (
			l          SnapshotLine
			productID  *int64
			businessID *int64
			name, size *string
			colorID    *int64
			stock      *int
			price      *string
		)
		if err := rows.Scan(&l.CartItemID, &l.SizeID, &l.Quantity, &productID, &businessID, &name, &size, &colorID, &stock, &price); err != nil {
			return nil, err
		}
		if productID != nil && price != nil {
			p, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("parse price of size %d: %w", l.SizeID, err)
			}
			l.Unit = &catalog.Unit{
				SizeID:      l.SizeID,
				ProductID:   *productID,
				BusinessID:  *businessID,
				ProductName: *name,
				Size:        *size,
				ColorID:     colorID,
				Stock:       *stock,
				Price:       p,
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Numeric values travel as text so no float ever touches money.
func insertOrder(ctx context.Context, tx pgx.Tx, o Order) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(order_id, external_id, user_id, business_id, total_amount,
		                   payment_status, order_status, shipping_address, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5::text::numeric, $6, $7, $8, $9, $9)`,
		o.ID, o.ExternalID, o.UserID, o.BusinessID, o.Total.StringFixed(2),
		o.PaymentStatus, string(o.OrderStatus), o.ShippingAddress, o.CreatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, size_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::text::numeric)`,
			o.ID, it.SizeID, it.ProductID, it.Quantity, it.UnitPrice.StringFixed(2)); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *Repo) Insert(ctx context.Context, o Order) (Order, bool, error) {
	var (
		out     Order
		existed bool
	)
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		out, existed = o, false
		if o.ExternalID != "" {
			prev, err := byExternalID(ctx, tx, o.UserID, o.ExternalID)
			if err == nil {
				out, existed = prev, true
				return nil
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
		}
		return insertOrder(ctx, tx, o)
	})

	// lost a race on the same idempotency key
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && o.ExternalID != "" {
		prev, lookupErr := byExternalID(ctx, r.DB, o.UserID, o.ExternalID)
		if lookupErr != nil {
			return Order{}, false, lookupErr
		}
		return prev, true, nil
	}
	if err != nil {
		return Order{}, false, err
	}
	return out, existed, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func byExternalID(ctx context.Context, q querier, userID, externalID string) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, selectOrder+` WHERE user_id = $1 AND external_id = $2`, userID, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.ErrNotFound
	}
	if err != nil {
		return Order{}, postgres.Classify(fmt.Errorf("find order by key: %w", err))
	}
	if o.Items, err = loadItems(ctx, q, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT size_id, product_id, quantity, unit_price::text
		FROM order_items WHERE order_id = $1 ORDER BY order_item_id`, orderID)
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("load order items: %w", err))
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.SizeID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, apperr.NotFound("order not found")
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, selectOrder+` WHERE order_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return Order{}, postgres.Classify(fmt.Errorf("get order: %w", err))
	}
	if o.Items, err = loadItems(ctx, r.DB, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) PaymentContext(ctx context.Context, id string) (PaymentContext, error) {
	if _, err := uuid.Parse(id); err != nil {
		return PaymentContext{}, apperr.NotFound("order not found")
	}
	var (
		pc     PaymentContext
		total  string
		status string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT o.order_id::text, o.user_id, o.business_id, o.total_amount::text, o.payment_status, o.order_status,
		       COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, ''), COALESCE(b.business_name, '')
		FROM orders o
		LEFT JOIN users u ON u.user_id = o.user_id
		LEFT JOIN businesses b ON b.business_id = o.business_id
		WHERE o.order_id = $1`, id).
		Scan(&pc.Order.ID, &pc.Order.UserID, &pc.Order.BusinessID, &total, &pc.Order.PaymentStatus, &status,
			&pc.FirstName, &pc.LastName, &pc.Email, &pc.BusinessName)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentContext{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return PaymentContext{}, postgres.Classify(fmt.Errorf("payment context: %w", err))
	}
	pc.Order.OrderStatus = Status(status)
	if pc.Order.Total, err = decimal.NewFromString(total); err != nil {
		return PaymentContext{}, fmt.Errorf("parse total of order %s: %w", id, err)
	}
	return pc, nil
}

// Reconcile runs decide against the row-locked order, so two notifications
// for one order cannot both observe pending.
func (r *Repo) Reconcile(ctx context.Context, id string, decide DecideFunc) (Order, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, false, apperr.NotFound("order not found")
	}
	var (
		out     Order
		applied bool
	)
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		applied = false
		o, err := scanOrder(tx.QueryRow(ctx, selectOrder+` WHERE order_id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		t, err := decide(o)
		if err != nil {
			return err
		}
		if t == nil {
			out = o
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE orders
			SET payment_status = $2, order_status = $3, payment_date = $4, updated_at = $4
			WHERE order_id = $1`, id, t.PaymentStatus, string(t.OrderStatus), t.PaymentDate); err != nil {
			return fmt.Errorf("apply transition: %w", err)
		}
		date := t.PaymentDate
		o.PaymentStatus, o.OrderStatus, o.PaymentDate, o.UpdatedAt = t.PaymentStatus, t.OrderStatus, &date, date
		out, applied = o, true
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	return out, applied, nil
}

var _ Store = (*Repo)(nil)

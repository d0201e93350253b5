package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres/pgtest"
)

func TestRepo(t *testing.T) {
	pool := pgtest.Start(t)
	ctx := context.Background()

	override := "10.50"
	businessID, productID, sizes := pgtest.Seed(t, pool, "u1", "25.00",
		pgtest.Size{Size: "M", Stock: 50},
		pgtest.Size{Size: "L", Stock: 50, Price: &override},
	)
	repo := &orders.Repo{DB: pool}
	carts := &cart.PGRepo{DB: pool}
	factory := orders.NewFactory(repo, &catalog.PGResolver{DB: pool})

	fill := func(t *testing.T, user string) {
		t.Helper()
		_, err := carts.AddLine(ctx, user, sizes[0], 2)
		require.NoError(t, err)
		_, err = carts.AddLine(ctx, user, sizes[1], 1)
		require.NoError(t, err)
	}

	t.Run("checkout freezes the cart", func(t *testing.T) {
		fill(t, "u1")
		o, existed, err := factory.Checkout(ctx, orders.CheckoutInput{UserID: "u1", ShippingFee: dec("0"), ShippingAddress: "1 Long St"})
		require.NoError(t, err)
		assert.False(t, existed)
		// 2*25.00 + 10.50
		assert.Equal(t, "60.50", o.Total.StringFixed(2))

		items, err := carts.Items(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, items)

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "60.50", got.Total.StringFixed(2))
		assert.Equal(t, orders.StatusPending, got.OrderStatus)
		assert.Equal(t, businessID, got.BusinessID)
		assert.Equal(t, "1 Long St", got.ShippingAddress)
		require.Len(t, got.Items, 2)
		assert.Equal(t, productID, got.Items[0].ProductID)
		assert.Equal(t, "10.50", got.Items[1].UnitPrice.StringFixed(2))

		pc, err := repo.PaymentContext(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "Thandi", pc.FirstName)
		assert.Equal(t, "thandi@example.com", pc.Email)
		assert.Equal(t, "Acme Apparel", pc.BusinessName)
		assert.True(t, pc.Order.Total.Equal(o.Total))
	})

	t.Run("concurrent checkouts create one order", func(t *testing.T) {
		fill(t, "racer")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created []string
			empty   int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, _, err := factory.Checkout(ctx, orders.CheckoutInput{UserID: "racer", ShippingFee: dec("0")})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created = append(created, o.ID)
				case apperr.Reason(err) == "cart is empty":
					empty++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Len(t, created, 1)
		assert.Equal(t, 7, empty)
		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = 'racer'`).Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("idempotency key replays the order", func(t *testing.T) {
		fill(t, "keyed")
		in := orders.CheckoutInput{UserID: "keyed", ShippingFee: dec("0"), IdempotencyKey: "k-1"}

		first, existed, err := factory.Checkout(ctx, in)
		require.NoError(t, err)
		assert.False(t, existed)

		again, existed, err := factory.Checkout(ctx, in)
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, first.ID, again.ID)
		assert.Len(t, again.Items, 2)
	})

	t.Run("racing inserts under one key keep the first", func(t *testing.T) {
		now := time.Now().UTC()
		var (
			wg  sync.WaitGroup
			ids = make([]string, 4)
		)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				stored, _, err := repo.Insert(ctx, orders.Order{
					ID: uuid.NewString(), ExternalID: "bn-1", UserID: "buyer", BusinessID: businessID,
					Total: dec("25.00"), PaymentStatus: "pending", OrderStatus: orders.StatusPending,
					Items:     []orders.Item{{SizeID: sizes[0], ProductID: productID, Quantity: 1, UnitPrice: dec("25.00")}},
					CreatedAt: now,
				})
				assert.NoError(t, err)
				ids[i] = stored.ID
			}(i)
		}
		wg.Wait()
		for _, id := range ids[1:] {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("reconcile writes once", func(t *testing.T) {
		fill(t, "payer")
		o, _, err := factory.Checkout(ctx, orders.CheckoutInput{UserID: "payer", ShippingFee: dec("0")})
		require.NoError(t, err)

		paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		decide := func(cur orders.Order) (*orders.Transition, error) {
			if cur.OrderStatus.Terminal() {
				return nil, nil
			}
			return &orders.Transition{PaymentStatus: "complete", OrderStatus: orders.StatusPaid, PaymentDate: paidAt}, nil
		}

		updated, applied, err := repo.Reconcile(ctx, o.ID, decide)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, orders.StatusPaid, updated.OrderStatus)

		_, applied, err = repo.Reconcile(ctx, o.ID, decide)
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "complete", got.PaymentStatus)
		require.NotNil(t, got.PaymentDate)
		assert.True(t, paidAt.Equal(*got.PaymentDate))
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		for _, id := range []string{"not-a-uuid", uuid.NewString()} {
			_, err := repo.Get(ctx, id)
			require.ErrorIs(t, err, apperr.ErrNotFound)
			_, err = repo.PaymentContext(ctx, id)
			require.ErrorIs(t, err, apperr.ErrNotFound)
			_, _, err = repo.Reconcile(ctx, id, func(orders.Order) (*orders.Transition, error) { return nil, nil })
			require.ErrorIs(t, err, apperr.ErrNotFound)
		}
	})
}

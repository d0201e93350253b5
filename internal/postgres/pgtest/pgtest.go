// Package pgtest starts a throwaway Postgres for repository tests.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
)

// Start runs postgres:16-alpine with every migration applied. It skips under
// -short and when no container runtime is reachable.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	c, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(pool))
	return pool
}

// Seed inserts one business, one user and a product with the given sizes and
// returns the size ids in order. A nil price falls back to the product price.
func Seed(t *testing.T, pool *pgxpool.Pool, userID string, productPrice string, sizes ...Size) (businessID, productID int64, sizeIDs []int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO businesses(business_name) VALUES ('Acme Apparel') RETURNING business_id`).Scan(&businessID))
	_, err := pool.Exec(ctx,
		`INSERT INTO users(user_id, first_name, last_name, email) VALUES ($1, 'Thandi', 'Nkosi', 'thandi@example.com')
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	require.NoError(t, err)
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO products(business_id, product_name, product_price) VALUES ($1, 'Hoodie', $2::text::numeric) RETURNING product_id`,
		businessID, productPrice).Scan(&productID))

	for _, s := range sizes {
		var id int64
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO product_size(product_id, size, quantity, price) VALUES ($1, $2, $3, $4::text::numeric) RETURNING size_id`,
			productID, s.Size, s.Stock, s.Price).Scan(&id))
		sizeIDs = append(sizeIDs, id)
	}
	return businessID, productID, sizeIDs
}

type Size struct {
	Size  string
	Stock int
	Price *string
}

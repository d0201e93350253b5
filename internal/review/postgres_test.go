package review

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres/pgtest"
)

func TestPGStore_RecordsOnce(t *testing.T) {
	pool := pgtest.Start(t)
	ctx := context.Background()
	s := &PGStore{DB: pool}

	e := Entry{
		EventID:        uuid.NewString(),
		OrderID:        "6f1c2a4e-1b7d-4c1e-9a51-2f0d1f7f9b10",
		Reason:         "amount_mismatch",
		RawStatus:      "complete",
		AmountGross:    "60.49",
		ExpectedAmount: "60.50",
		GatewayRef:     "1089250",
		OccurredAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	filed, err := s.Record(ctx, e)
	require.NoError(t, err)
	assert.True(t, filed)

	filed, err = s.Record(ctx, e)
	require.NoError(t, err)
	assert.False(t, filed)

	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM payment_reviews WHERE order_id = $1 AND NOT resolved`, e.OrderID).Scan(&n))
	assert.Equal(t, 1, n)
}

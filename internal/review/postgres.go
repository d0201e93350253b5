package review

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
)

type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Record(ctx context.Context, e Entry) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		INSERT INTO payment_reviews(event_id, order_id, reason, raw_status, amount_gross,
		                            expected_amount, gateway_ref, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.OrderID, e.Reason, e.RawStatus, e.AmountGross, e.ExpectedAmount, e.GatewayRef, e.OccurredAt)
	if err != nil {
		return false, postgres.Classify(fmt.Errorf("insert payment review: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

var _ Store = (*PGStore)(nil)

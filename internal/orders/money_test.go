package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotal(t *testing.T) {
	items := []Item{
		{SizeID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{SizeID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("16.52")},
		{SizeID: 3, Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
	}
	fee := decimal.RequireFromString("4")

	got := Total(items, fee)
	assert.Equal(t, "60.80", got.StringFixed(2))

	reversed := []Item{items[2], items[1], items[0]}
	assert.True(t, got.Equal(Total(reversed, fee)))

	assert.True(t, Total(nil, fee).Equal(fee))
	// no binary float drift: 0.1 * 3 is exactly 0.30
	assert.Equal(t, "0.30", Total(items[2:], decimal.Zero).StringFixed(2))
}

func TestStatusTransitions(t *testing.T) {
	for _, to := range []Status{StatusPaid, StatusPaymentFailed, StatusCancelled} {
		assert.True(t, CanTransition(StatusPending, to))
		assert.True(t, to.Terminal())
		for _, next := range []Status{StatusPending, StatusPaid, StatusPaymentFailed, StatusCancelled} {
			assert.False(t, CanTransition(to, next))
		}
	}
	assert.False(t, StatusPending.Terminal())
	assert.False(t, Status("shipped").Terminal())
}

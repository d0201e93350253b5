package orders

import "github.com/shopspring/decimal"

// Total is Σ unitPrice × quantity rounded to cents, plus shipping.
func Total(items []Item, shipping decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum.Round(2).Add(shipping.Round(2))
}

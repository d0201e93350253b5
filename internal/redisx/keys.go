package redisx

import "time"

const (
	// Cart listing: cart:{user_id}:{version} -> JSON []cart.Item
	KeyCartItems = "cart:%s:%d"

	// Cart version, bumped after every cart mutation: cart_ver:{user_id}
	KeyCartVersion = "cart_ver:%s"

	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache status order: order_status:{order_id} -> {"order_status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCartItems   = 15 * time.Minute
	TTLCartVersion = 7 * 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

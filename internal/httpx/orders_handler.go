package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

type OrdersHandler struct {
	Factory     *orders.Factory
	Orders      orders.Store
	Cart        *cart.Service
	Redis       redis.Cmdable
	Producer    orders.Publisher
	Service     string
	ShippingFee decimal.Decimal
}

type CheckoutReq struct {
	BusinessID      int64  `json:"businessId"`
	ShippingAddress string `json:"shippingAddress"`
}

type BuyNowReq struct {
	ProductID       int64  `json:"productId"`
	Quantity        int    `json:"quantity"`
	Size            string `json:"size"`
	ColorID         *int64 `json:"colorId"`
	ShippingAddress string `json:"shippingAddress"`
}

type CheckoutResp struct {
	OrderID     string       `json:"order_id"`
	TotalAmount string       `json:"total_amount"`
	Idempotent  bool         `json:"idempotent"`
	Order       orders.Order `json:"order"`
}

// StatusView is what GET /orders/{id} returns and what the status cache holds.
type StatusView struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	PaymentStatus string        `json:"payment_status"`
	OrderStatus   orders.Status `json:"order_status"`
	TotalAmount   string        `json:"total_amount"`
	PaymentDate   *time.Time    `json:"payment_date,omitempty"`
}

func statusView(o orders.Order) StatusView {
	return StatusView{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PaymentStatus: o.PaymentStatus,
		OrderStatus:   o.OrderStatus,
		TotalAmount:   o.Total.StringFixed(2),
		PaymentDate:   o.PaymentDate,
	}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Post("/checkout/buy-now", h.buyNow)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	uid := userID(r)
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// 1) fast path: key already seen
	if o, ok := h.replayed(ctx, uid, key); ok {
		writeJSON(w, http.StatusOK, CheckoutResp{OrderID: o.ID, TotalAmount: o.Total.StringFixed(2), Idempotent: true, Order: o})
		return
	}

	// 2) freeze the cart
	o, existed, err := h.Factory.Checkout(ctx, orders.CheckoutInput{
		UserID:          uid,
		BusinessID:      req.BusinessID,
		ShippingFee:     h.ShippingFee,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  key,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !existed {
		h.Cart.Invalidate(ctx, uid)
	}
	h.created(ctx, r, o, key, existed)

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CheckoutResp{OrderID: o.ID, TotalAmount: o.Total.StringFixed(2), Idempotent: existed, Order: o})
}

func (h *OrdersHandler) buyNow(w http.ResponseWriter, r *http.Request) {
	var req BuyNowReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	uid := userID(r)
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if o, ok := h.replayed(ctx, uid, key); ok {
		writeJSON(w, http.StatusOK, CheckoutResp{OrderID: o.ID, TotalAmount: o.Total.StringFixed(2), Idempotent: true, Order: o})
		return
	}

	o, existed, err := h.Factory.BuyNow(ctx, orders.BuyNowInput{
		UserID:          uid,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		Size:            req.Size,
		ColorID:         req.ColorID,
		ShippingFee:     h.ShippingFee,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  key,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.created(ctx, r, o, key, existed)

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CheckoutResp{OrderID: o.ID, TotalAmount: o.Total.StringFixed(2), Idempotent: existed, Order: o})
}

// replayed serves a repeated Idempotency-Key from Redis without touching the
// cart. Any cache problem falls through to the database path, which enforces
// the same key.
func (h *OrdersHandler) replayed(ctx context.Context, uid, key string) (orders.Order, bool) {
	if key == "" || h.Redis == nil {
		return orders.Order{}, false
	}
	id, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, uid, key)).Result()
	if err != nil || id == "" {
		return orders.Order{}, false
	}
	o, err := h.Orders.Get(ctx, id)
	if err != nil || o.UserID != uid {
		return orders.Order{}, false
	}
	return o, true
}

// created records the idempotency key, warms the status cache and, for a new
// order, publishes OrderCreated.
func (h *OrdersHandler) created(ctx context.Context, r *http.Request, o orders.Order, key string, existed bool) {
	log := logging.FromContext(r.Context()).With(zap.String("order_id", o.ID))
	if h.Redis != nil {
		if key != "" {
			if err := h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, o.UserID, key), o.ID, redisx.TTLIdempotency).Err(); err != nil {
				log.Warn("idempotency key not cached", zap.Error(err))
			}
		}
		fillStatus(ctx, h.Redis, o, log)
	}
	if existed || h.Producer == nil {
		return
	}
	orders.Emit(h.Producer, orders.TopicOrderCreated,
		orders.NewEnvelope(orders.EventOrderCreated, h.Service, middleware.GetReqID(r.Context()), o.ID, orders.OrderCreated(o)))
	log.Info("order created", zap.String("total_amount", o.Total.StringFixed(2)), zap.Int64("business_id", o.BusinessID))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	uid := userID(r)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Result(); err == nil && s != "" {
			var v StatusView
			if json.Unmarshal([]byte(s), &v) == nil {
				if v.UserID != uid {
					respondError(w, r, apperr.NotFound("order not found"))
					return
				}
				writeJSON(w, http.StatusOK, v)
				return
			}
		}
	}

	// 2) database
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if o.UserID != uid {
		respondError(w, r, apperr.NotFound("order not found"))
		return
	}
	if h.Redis != nil {
		fillStatus(ctx, h.Redis, o, logging.FromContext(r.Context()))
	}
	writeJSON(w, http.StatusOK, statusView(o))
}

// fillStatus caches a view read from the database only when no entry exists.
// A notification that lands between the read and the fill has already written
// the newer view, and SETNX keeps the stale read from replacing it.
func fillStatus(ctx context.Context, rdb redis.Cmdable, o orders.Order, log *zap.Logger) {
	b, err := json.Marshal(statusView(o))
	if err != nil {
		return
	}
	if err := rdb.SetNX(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID), b, redisx.TTLStatusCache).Err(); err != nil {
		log.Warn("order status not cached", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// storeStatus overwrites the cached view with the state just committed. When
// the write fails the entry is dropped so readers fall back to the database.
func storeStatus(ctx context.Context, rdb redis.Cmdable, o orders.Order, log *zap.Logger) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, err := json.Marshal(statusView(o))
	if err == nil {
		err = rdb.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	if err == nil {
		return
	}
	log.Error("order status cache not refreshed", zap.String("order_id", o.ID), zap.Error(err))
	if err := rdb.Del(ctx, key).Err(); err != nil {
		log.Error("stale order status left in cache", zap.String("order_id", o.ID), zap.Error(err))
	}
}

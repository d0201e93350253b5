// Package reconcile applies verified payment notifications to orders.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payfast"
)

// Outcome labels for the notification counter.
const (
	OutcomeApplied        = "applied"
	OutcomeDuplicate      = "duplicate"
	OutcomeAmountMismatch = "amount_mismatch"
	OutcomeUnknownStatus  = "unknown_status"
	OutcomeNotFound       = "not_found"
	OutcomeError          = "error"

	// Rejected before reaching the engine.
	OutcomeSignatureInvalid = "signature_invalid"
	OutcomeMalformed        = "malformed"
)

// Review reasons carried by PaymentReview events.
const (
	ReasonAmountMismatch = "AMOUNT_MISMATCH"
	ReasonUnknownStatus  = "UNKNOWN_STATUS"
)

var gatewayStatus = map[string]orders.Status{
	"COMPLETE":  orders.StatusPaid,
	"FAILED":    orders.StatusPaymentFailed,
	"CANCELLED": orders.StatusCancelled,
}

// MapStatus translates the gateway vocabulary. Matching is exact.
func MapStatus(raw string) (orders.Status, bool) {
	s, ok := gatewayStatus[raw]
	return s, ok
}

type Result struct {
	Order   orders.Order
	Applied bool
}

type Engine struct {
	store    orders.Store
	pub      orders.Publisher
	outcomes *prometheus.CounterVec
	log      *zap.Logger
	producer string
	now      func() time.Time
}

// New builds an engine. outcomes may be nil; it must carry a single
// "outcome" label otherwise.
func New(store orders.Store, pub orders.Publisher, outcomes *prometheus.CounterVec, log *zap.Logger, producer string) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    store,
		pub:      pub,
		outcomes: outcomes,
		log:      log,
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Apply moves a pending order to the state the notification reports. Replays
// against an order that is already terminal succeed without writing.
func (e *Engine) Apply(ctx context.Context, n payfast.Notification) (Result, error) {
	var expected decimal.Decimal

	// TODO: decrement stock on paid in the same transaction once the inventory
	// subsystem agrees on ownership of product_size.stock.
	decide := func(o orders.Order) (*orders.Transition, error) {
		expected = o.Total
		if !n.Amount.Equal(o.Total) {
			return nil, fmt.Errorf("%w: got %s, order total %s", apperr.ErrAmountMismatch, n.Amount.String(), o.Total.StringFixed(2))
		}
		target, ok := MapStatus(n.RawStatus)
		if !ok {
			return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownStatus, n.RawStatus)
		}
		if o.OrderStatus.Terminal() || !orders.CanTransition(o.OrderStatus, target) {
			return nil, nil
		}
		return &orders.Transition{
			PaymentStatus: strings.ToLower(n.RawStatus),
			OrderStatus:   target,
			PaymentDate:   e.now(),
		}, nil
	}

	o, applied, err := e.store.Reconcile(ctx, n.OrderID, decide)
	log := logging.FromContextOr(ctx, e.log).With(zap.String("order_id", n.OrderID), zap.String("payment_status", n.RawStatus), zap.String("pf_payment_id", n.GatewayRef))

	switch {
	case err == nil && applied:
		e.count(OutcomeApplied)
		e.emit(orders.TopicPaymentReconciled, orders.EventPaymentReconciled, n.OrderID, orders.PaymentReconciledPayload{
			OrderID:       o.ID,
			PaymentStatus: o.PaymentStatus,
			OrderStatus:   o.OrderStatus,
			AmountGross:   n.Amount.StringFixed(2),
			GatewayRef:    n.GatewayRef,
			PaymentDate:   *o.PaymentDate,
		})
		log.Info("payment reconciled", zap.String("order_status", string(o.OrderStatus)))
	case err == nil:
		e.count(OutcomeDuplicate)
		log.Info("notification replay ignored", zap.String("order_status", string(o.OrderStatus)))
	case errors.Is(err, apperr.ErrAmountMismatch):
		e.count(OutcomeAmountMismatch)
		e.review(n, ReasonAmountMismatch, expected)
		log.Warn("notification amount mismatch", zap.String("amount_gross", n.Amount.String()), zap.String("expected", expected.StringFixed(2)))
	case errors.Is(err, apperr.ErrUnknownStatus):
		e.count(OutcomeUnknownStatus)
		e.review(n, ReasonUnknownStatus, expected)
		log.Warn("notification status unknown")
	case errors.Is(err, apperr.ErrNotFound):
		e.count(OutcomeNotFound)
		log.Warn("notification for unknown order")
	default:
		e.count(OutcomeError)
		log.Error("reconcile failed", zap.Error(err))
	}
	if err != nil {
		return Result{}, fmt.Errorf("reconcile order %s: %w", n.OrderID, err)
	}
	return Result{Order: o, Applied: applied}, nil
}

func (e *Engine) review(n payfast.Notification, reason string, expected decimal.Decimal) {
	p := orders.PaymentReviewPayload{
		OrderID:     n.OrderID,
		Reason:      reason,
		RawStatus:   n.RawStatus,
		AmountGross: n.Amount.String(),
		GatewayRef:  n.GatewayRef,
	}
	if !expected.IsZero() {
		p.ExpectedAmount = expected.StringFixed(2)
	}
	e.emit(orders.TopicPaymentReview, orders.EventPaymentReview, n.OrderID, p)
}

func (e *Engine) emit(topic, eventType, orderID string, payload any) {
	if e.pub == nil {
		return
	}
	orders.Emit(e.pub, topic, orders.NewEnvelope(eventType, e.producer, "", orderID, payload))
}

// Observe counts an outcome decided outside Apply, such as a bad signature.
func (e *Engine) Observe(outcome string) { e.count(outcome) }

func (e *Engine) count(outcome string) {
	if e.outcomes != nil {
		e.outcomes.WithLabelValues(outcome).Inc()
	}
}

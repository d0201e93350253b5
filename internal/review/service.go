// Package review consumes PaymentReview events and files them in the manual
// reconciliation queue (payment_reviews).
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

// Entry is one notification awaiting a person's decision.
type Entry struct {
	EventID        string
	OrderID        string
	Reason         string
	RawStatus      string
	AmountGross    string
	ExpectedAmount string
	GatewayRef     string
	OccurredAt     time.Time
}

type Store interface {
	// Record files e once; a repeated event id reports inserted=false.
	Record(ctx context.Context, e Entry) (inserted bool, err error)
}

// Result labels for the review counter.
const (
	ResultFiled     = "filed"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
)

type Service struct {
	Store       Store
	Redis       redis.Cmdable
	Results     *prometheus.CounterVec
	Log         *zap.Logger
	ServiceName string
}

// HandlePaymentReview is installed as the consumer handler. A nil return
// commits the offset.
func (s *Service) HandlePaymentReview(ctx context.Context, m kafkago.Message) error {
	log := s.logger()

	// 1) skip foreign events by header before decoding
	if et := kafkax.HeaderValue(m, kafkax.HeaderEventType); et != "" && et != orders.EventPaymentReview {
		s.count(ResultIgnored)
		return nil
	}

	// 2) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error("undecodable review event dropped", zap.Int64("offset", m.Offset), zap.Error(err))
		s.count(ResultIgnored)
		return nil
	}
	if env.EventType != orders.EventPaymentReview {
		s.count(ResultIgnored)
		return nil
	}

	// 3) dedup fast path via Redis; the table's primary key is the real guard
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		s.count(ResultDuplicate)
		return nil
	}

	// 4) decode payload
	p, err := kafkax.UnwrapPayload[orders.PaymentReviewPayload](env.Payload)
	if err != nil {
		log.Error("review payload dropped", zap.String("event_id", env.EventID), zap.Error(err))
		s.count(ResultIgnored)
		return nil
	}

	// 5) file it
	inserted, err := s.Store.Record(ctx, Entry{
		EventID:        env.EventID,
		OrderID:        p.OrderID,
		Reason:         p.Reason,
		RawStatus:      p.RawStatus,
		AmountGross:    p.AmountGross,
		ExpectedAmount: p.ExpectedAmount,
		GatewayRef:     p.GatewayRef,
		OccurredAt:     env.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("record review %s: %w", env.EventID, err)
	}
	_, _ = redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)

	if !inserted {
		s.count(ResultDuplicate)
		return nil
	}
	s.count(ResultFiled)
	log.Warn("payment needs manual review",
		zap.String("order_id", p.OrderID),
		zap.String("reason", p.Reason),
		zap.String("raw_status", p.RawStatus),
		zap.String("amount_gross", p.AmountGross),
		zap.String("expected_amount", p.ExpectedAmount),
		zap.String("trace_id", env.TraceID))
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) count(result string) {
	if s.Results != nil {
		s.Results.WithLabelValues(result).Inc()
	}
}

package orders

import (
	"encoding/json"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated      = "OrderCreated"
	EventPaymentReconciled = "PaymentReconciled"
	EventPaymentReview     = "PaymentReview"
)

const eventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	SizeID    int64  `json:"size_id"`
	ProductID int64  `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID     string      `json:"order_id"`
	ExternalID  string      `json:"external_id,omitempty"`
	UserID      string      `json:"user_id"`
	BusinessID  int64       `json:"business_id"`
	Items       []ItemPrice `json:"items"`
	TotalAmount string      `json:"total_amount"`
}

type PaymentReconciledPayload struct {
	OrderID       string    `json:"order_id"`
	PaymentStatus string    `json:"payment_status"`
	OrderStatus   Status    `json:"order_status"`
	AmountGross   string    `json:"amount_gross"`
	GatewayRef    string    `json:"gateway_ref,omitempty"`
	PaymentDate   time.Time `json:"payment_date"`
}

// PaymentReviewPayload describes a notification that passed signature checks
// but could not be applied and needs a person to look at it.
type PaymentReviewPayload struct {
	OrderID        string `json:"order_id"`
	Reason         string `json:"reason"` // AMOUNT_MISMATCH | UNKNOWN_STATUS
	RawStatus      string `json:"raw_status"`
	AmountGross    string `json:"amount_gross"`
	ExpectedAmount string `json:"expected_amount,omitempty"`
	GatewayRef     string `json:"gateway_ref,omitempty"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

func NewEnvelope(eventType, producer, traceID, orderID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

// Emit publishes env keyed by its order id so one order's events stay ordered.
func Emit(p Publisher, topic string, env Envelope) {
	p.Publish(topic, PartitionKey(env.CorrelationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: kafkax.HeaderEventType, Value: []byte(env.EventType)},
		kafkago.Header{Key: kafkax.HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}

func OrderCreated(o Order) OrderCreatedPayload {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{SizeID: it.SizeID, ProductID: it.ProductID, Qty: it.Quantity, UnitPrice: it.UnitPrice.StringFixed(2)})
	}
	return OrderCreatedPayload{
		OrderID:     o.ID,
		ExternalID:  o.ExternalID,
		UserID:      o.UserID,
		BusinessID:  o.BusinessID,
		Items:       items,
		TotalAmount: o.Total.StringFixed(2),
	}
}

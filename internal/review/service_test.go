package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	fail    error
}

func (m *memStore) Record(_ context.Context, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	if _, ok := m.entries[e.EventID]; ok {
		return false, nil
	}
	m.entries[e.EventID] = e
	return true, nil
}

func newService(t *testing.T) (*Service, *memStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := &memStore{entries: map[string]Entry{}}
	results := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_review_total"}, []string{"result"})
	return &Service{Store: st, Redis: rdb, Results: results, ServiceName: "reviewer"}, st, mr
}

func reviewMessage(t *testing.T) (kafkago.Message, orders.Envelope) {
	t.Helper()
	env := orders.NewEnvelope(orders.EventPaymentReview, "api", "trace-1", "order-1", orders.PaymentReviewPayload{
		OrderID:        "order-1",
		Reason:         "AMOUNT_MISMATCH",
		RawStatus:      "COMPLETE",
		AmountGross:    "60.49",
		ExpectedAmount: "60.50",
		GatewayRef:     "1089250",
	})
	return kafkago.Message{Value: kafkax.MustMarshal(env)}, env
}

func TestHandlePaymentReview_FilesOnce(t *testing.T) {
	svc, st, mr := newService(t)
	m, env := reviewMessage(t)
	ctx := context.Background()

	require.NoError(t, svc.HandlePaymentReview(ctx, m))
	require.NoError(t, svc.HandlePaymentReview(ctx, m))

	require.Len(t, st.entries, 1)
	e := st.entries[env.EventID]
	assert.Equal(t, "order-1", e.OrderID)
	assert.Equal(t, "60.50", e.ExpectedAmount)
	assert.True(t, mr.Exists("dedup:reviewer:"+env.EventID))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Results.WithLabelValues(ResultFiled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Results.WithLabelValues(ResultDuplicate)))
}

func TestHandlePaymentReview_DedupSurvivesRedisLoss(t *testing.T) {
	svc, st, mr := newService(t)
	m, _ := reviewMessage(t)
	ctx := context.Background()

	require.NoError(t, svc.HandlePaymentReview(ctx, m))
	mr.FlushAll()
	require.NoError(t, svc.HandlePaymentReview(ctx, m))
	assert.Len(t, st.entries, 1)
}

func TestHandlePaymentReview_StoreFailureIsRetried(t *testing.T) {
	svc, st, mr := newService(t)
	m, env := reviewMessage(t)
	st.fail = errors.New("db down")

	require.Error(t, svc.HandlePaymentReview(context.Background(), m))
	// nothing marked, so redelivery is processed
	assert.False(t, mr.Exists("dedup:reviewer:"+env.EventID))

	st.fail = nil
	require.NoError(t, svc.HandlePaymentReview(context.Background(), m))
	assert.Len(t, st.entries, 1)
}

func TestHandlePaymentReview_IgnoresForeignAndBrokenEvents(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	other := orders.NewEnvelope(orders.EventOrderCreated, "api", "", "order-1", orders.OrderCreatedPayload{OrderID: "order-1"})
	require.NoError(t, svc.HandlePaymentReview(ctx, kafkago.Message{Value: kafkax.MustMarshal(other)}))
	require.NoError(t, svc.HandlePaymentReview(ctx, kafkago.Message{Value: []byte("{")}))

	// header says foreign, body is never looked at
	m, _ := reviewMessage(t)
	m.Headers = []kafkago.Header{{Key: kafkax.HeaderEventType, Value: []byte(orders.EventOrderCreated)}}
	require.NoError(t, svc.HandlePaymentReview(ctx, m))

	assert.Empty(t, st.entries)
	assert.Equal(t, 3.0, testutil.ToFloat64(svc.Results.WithLabelValues(ResultIgnored)))
}

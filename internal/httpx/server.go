package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payfast"
	"github.com/ariefcatur/go-storefront-orders/internal/reconcile"
)

// Deps is everything the API routes need.
type Deps struct {
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	Auth        *auth.Verifier
	Cart        *cart.Service
	Factory     *orders.Factory
	Orders      orders.Store
	Gateway     *payfast.Gateway
	Reconciler  *reconcile.Engine
	Redis       redis.Cmdable
	Publisher   orders.Publisher
	Service     string
	ShippingFee decimal.Decimal
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	ch := &CartHandler{Cart: d.Cart}
	oh := &OrdersHandler{Factory: d.Factory, Orders: d.Orders, Cart: d.Cart, Redis: d.Redis, Producer: d.Publisher, Service: d.Service, ShippingFee: d.ShippingFee}
	ph := &PaymentsHandler{Orders: d.Orders, Gateway: d.Gateway, Reconciler: d.Reconciler, Redis: d.Redis}

	r.Route("/api", func(r chi.Router) {
		// gateway callback: authenticated by signature, not by bearer token
		r.Post("/payments/notify", ph.notify)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Middleware)
			ch.Register(r)
			oh.Register(r)
			r.Post("/payments/initiate", ph.initiate)
		})
	})
	return r
}

// requestLogger puts a zap logger tagged with the chi request id into the
// request context and logs one line per request.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), l)))

			l.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}

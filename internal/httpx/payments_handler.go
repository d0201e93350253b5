package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payfast"
	"github.com/ariefcatur/go-storefront-orders/internal/reconcile"
)

type PaymentsHandler struct {
	Orders     orders.Store
	Gateway    *payfast.Gateway
	Reconciler *reconcile.Engine
	Redis      redis.Cmdable
}

type InitiatePaymentReq struct {
	OrderID string `json:"orderId"`
}

func (h *PaymentsHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		respondError(w, r, apperr.Invalid("orderId is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	pc, err := h.Orders.PaymentContext(ctx, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if pc.Order.UserID != userID(r) {
		respondError(w, r, apperr.NotFound("order not found"))
		return
	}
	if pc.Order.OrderStatus != orders.StatusPending {
		respondError(w, r, apperr.Conflict("order is not awaiting payment"))
		return
	}

	writeJSON(w, http.StatusOK, h.Gateway.BuildPaymentRequest(payfast.PaymentOrder{
		OrderID:      pc.Order.ID,
		Amount:       pc.Order.Total,
		FirstName:    pc.FirstName,
		LastName:     pc.LastName,
		Email:        pc.Email,
		BusinessName: pc.BusinessName,
	}))
}

// notify handles the gateway's ITN. The signature is checked before any
// datastore access, and once verified the notification is processed to
// completion even if the gateway hangs up.
func (h *PaymentsHandler) notify(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.Reconciler.Observe(reconcile.OutcomeMalformed)
		writeText(w, http.StatusBadRequest, "Malformed notification")
		return
	}
	fields, err := payfast.FieldsFromForm(r.PostForm)
	if err == nil {
		err = h.Gateway.VerifyNotification(fields)
	}
	if err != nil {
		var ve *payfast.VerifyError
		if errors.As(err, &ve) {
			log.Warn("notification signature rejected",
				zap.String("order_id", fields["m_payment_id"]),
				zap.String("payment_status", fields["payment_status"]),
				zap.String("reason", ve.Reason),
				zap.String("computed", ve.Computed),
				zap.String("received", ve.Received))
		}
		h.Reconciler.Observe(reconcile.OutcomeSignatureInvalid)
		writeText(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	n, err := payfast.ParseNotification(fields)
	if err != nil {
		log.Warn("notification malformed", zap.Error(err))
		h.Reconciler.Observe(reconcile.OutcomeMalformed)
		writeText(w, http.StatusBadRequest, "Malformed notification")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	res, err := h.Reconciler.Apply(ctx, n)
	switch {
	case err == nil:
		if res.Applied && h.Redis != nil {
			storeStatus(ctx, h.Redis, res.Order, log)
		}
		writeText(w, http.StatusOK, "OK")
	case errors.Is(err, apperr.ErrAmountMismatch):
		writeText(w, http.StatusBadRequest, "Amount mismatch")
	case errors.Is(err, apperr.ErrUnknownStatus):
		writeText(w, http.StatusBadRequest, "Unknown payment status")
	case errors.Is(err, apperr.ErrNotFound):
		writeText(w, http.StatusNotFound, "Order not found")
	default:
		writeText(w, http.StatusInternalServerError, "Error processing payment")
	}
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Package payfast talks to the PayFast hosted checkout: it signs outbound
// payment requests and verifies the ITN callbacks PayFast posts back.
package payfast

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
)

const (
	SandboxURL = "https://sandbox.payfast.co.za/eng/process"
	LiveURL    = "https://www.payfast.co.za/eng/process"
)

type Config struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	Sandbox     bool
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
}

type Gateway struct {
	cfg Config
}

func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

// URL is the hosted checkout the browser is redirected to.
func (g *Gateway) URL() string {
	if g.cfg.Sandbox {
		return SandboxURL
	}
	return LiveURL
}

// Sign returns the lower-case MD5 signature of fields. A "signature" entry in
// fields is signed like any other key; callers strip it first.
func (g *Gateway) Sign(fields map[string]string) string {
	return digest(canonical(fields, g.cfg.Passphrase))
}

type PaymentOrder struct {
	OrderID      string
	Amount       decimal.Decimal
	FirstName    string
	LastName     string
	Email        string
	BusinessName string
}

type PaymentRequest struct {
	URL  string            `json:"url"`
	Data map[string]string `json:"data"`
}

func (g *Gateway) BuildPaymentRequest(o PaymentOrder) PaymentRequest {
	data := map[string]string{
		"merchant_id":      g.cfg.MerchantID,
		"merchant_key":     g.cfg.MerchantKey,
		"return_url":       g.cfg.ReturnURL,
		"cancel_url":       g.cfg.CancelURL,
		"notify_url":       g.cfg.NotifyURL,
		"name_first":       o.FirstName,
		"name_last":        o.LastName,
		"email_address":    o.Email,
		"m_payment_id":     o.OrderID,
		"amount":           o.Amount.StringFixed(2),
		"item_name":        "Order #" + o.OrderID,
		"item_description": "Purchase from " + o.BusinessName,
	}
	data["signature"] = g.Sign(data)
	return PaymentRequest{URL: g.URL(), Data: data}
}

// VerifyError carries both signatures so the notify handler can log them.
type VerifyError struct {
	Reason   string
	Computed string
	Received string
}

func (e *VerifyError) Error() string {
	return "payfast: " + e.Reason
}

func (e *VerifyError) Unwrap() error { return apperr.ErrSignatureInvalid }

// VerifyNotification checks the ITN signature over every posted field except
// "signature". It touches no datastore.
func (g *Gateway) VerifyNotification(fields map[string]string) error {
	received := strings.ToLower(strings.TrimSpace(fields["signature"]))
	if received == "" {
		return &VerifyError{Reason: "missing signature"}
	}
	clean := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "signature" {
			continue
		}
		clean[k] = strings.TrimSpace(v)
	}
	computed := g.Sign(clean)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(received)) != 1 {
		return &VerifyError{Reason: "signature mismatch", Computed: computed, Received: received}
	}
	return nil
}

// FieldsFromForm flattens a posted form. A key sent more than once cannot be
// canonicalized unambiguously and is rejected.
func FieldsFromForm(form url.Values) (map[string]string, error) {
	out := make(map[string]string, len(form))
	for k, vs := range form {
		if len(vs) > 1 {
			return nil, &VerifyError{Reason: fmt.Sprintf("duplicate field %q", k)}
		}
		if len(vs) == 1 {
			out[k] = vs[0]
		}
	}
	return out, nil
}

type Notification struct {
	OrderID    string
	Amount     decimal.Decimal
	RawStatus  string
	GatewayRef string
}

// ParseNotification extracts the reconciliation inputs from verified fields.
func ParseNotification(fields map[string]string) (Notification, error) {
	var missing []string
	get := func(k string) string {
		v := strings.TrimSpace(fields[k])
		if v == "" {
			missing = append(missing, k)
		}
		return v
	}
	n := Notification{
		OrderID:   get("m_payment_id"),
		RawStatus: get("payment_status"),
	}
	gross := get("amount_gross")
	n.GatewayRef = strings.TrimSpace(fields["pf_payment_id"])
	if len(missing) > 0 {
		return Notification{}, apperr.Invalid("missing fields: " + strings.Join(missing, ", "))
	}
	amt, err := decimal.NewFromString(gross)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %v", apperr.Invalid("malformed amount_gross"), err)
	}
	if amt.IsNegative() {
		return Notification{}, apperr.Invalid("negative amount_gross")
	}
	n.Amount = amt
	return n, nil
}


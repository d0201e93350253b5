// Package auth verifies the storefront's HS256 bearer tokens and carries the
// authenticated user through the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
)

var (
	ErrTokenMissing = errors.New("auth: token missing")
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithJSONNumber(),
		),
	}
}

// Verify parses token and extracts the user id from its "id" claim, which
// issuers encode either as a number or as a string.
func (v *Verifier) Verify(token string) (Principal, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	var id string
	switch raw := claims["id"].(type) {
	case json.Number:
		id = raw.String()
	case string:
		id = strings.TrimSpace(raw)
	}
	if id == "" {
		return Principal{}, fmt.Errorf("%w: id claim missing", ErrTokenInvalid)
	}
	email, _ := claims["email"].(string)
	return Principal{UserID: id, Email: email}, nil
}

// Middleware rejects requests without a bearer token with 401 and requests
// with an invalid or expired one with 403.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		p, err := v.Verify(token)
		if err != nil {
			logging.FromContext(r.Context()).Info("bearer token rejected", zap.Error(err))
			respondAuthError(w, http.StatusForbidden, "invalid or expired token")
			return
		}
		ctx := WithPrincipal(r.Context(), p)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(zap.String("user_id", p.UserID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

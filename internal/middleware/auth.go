package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ruralpay/collections/internal/scope"
	"github.com/ruralpay/collections/internal/services"
)

type contextKey string

const claimsKey contextKey = "claims"

// SessionChecker answers whether a token has been revoked.
type SessionChecker interface {
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	RevokedBefore(ctx context.Context, companyID string, issuedAt time.Time) (bool, error)
}

// Authenticate verifies the bearer token and stores its claims on the request
// context. Revocation lookups that fail are logged and let through; company
// access is enforced again by SubscriptionGate.
func Authenticate(secret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			claims, err := services.ParseToken(secret, parts[1])
			if err != nil {
				log.Printf("[AUTH] Rejected token from %s: %v", r.RemoteAddr, err)
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			if sessions != nil && revoked(r.Context(), sessions, claims) {
				services.SendErrorResponse(w, "Session has been revoked", http.StatusUnauthorized, nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func revoked(ctx context.Context, sessions SessionChecker, claims *services.Claims) bool {
	blacklisted, err := sessions.IsBlacklisted(ctx, claims.TokenID)
	if err != nil {
		log.Printf("[AUTH] Blacklist lookup failed: %v", err)
	}
	if blacklisted {
		return true
	}

	if claims.Identity.CompanyID == "" {
		return false
	}
	before, err := sessions.RevokedBefore(ctx, claims.Identity.CompanyID, claims.IssuedAt)
	if err != nil {
		log.Printf("[AUTH] Revocation lookup failed for company %s: %v", claims.Identity.CompanyID, err)
	}
	return before
}

// ClaimsFrom returns the claims Authenticate stored on ctx.
func ClaimsFrom(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*services.Claims)
	return claims, ok && claims != nil
}

// IdentityFrom returns the authenticated caller.
func IdentityFrom(ctx context.Context) (scope.Identity, bool) {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return scope.Identity{}, false
	}
	return claims.Identity, true
}

// WithClaims attaches claims to ctx. Handlers mounted without Authenticate
// use it in tests.
func WithClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

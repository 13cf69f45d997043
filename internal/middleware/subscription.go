package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/services"
)

// StatusCache is a short lived cache of company status.
type StatusCache interface {
	CompanyStatus(ctx context.Context, companyID string) (models.CompanyStatus, bool)
	CacheCompanyStatus(ctx context.Context, companyID string, status models.CompanyStatus)
}

// StatusSource reads the authoritative company status.
type StatusSource interface {
	CompanyStatus(ctx context.Context, companyID string) (models.CompanyStatus, error)
}

// SubscriptionGate rejects tenant requests while the caller's company is not
// ACTIVE. Platform administrators pass through.
func SubscriptionGate(cache StatusCache, source StatusSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			if id.Role == models.RoleSuperAdmin {
				next.ServeHTTP(w, r)
				return
			}

			status, err := companyStatus(r.Context(), cache, source, id.CompanyID)
			if errors.Is(err, models.ErrNotFound) {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			if err != nil {
				log.Printf("[AUTH] Company status lookup failed for %s: %v", id.CompanyID, err)
				services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
				return
			}
			if status != models.CompanyActive {
				services.SendErrorResponse(w, "Company subscription is not active", http.StatusPaymentRequired, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func companyStatus(ctx context.Context, cache StatusCache, source StatusSource, companyID string) (models.CompanyStatus, error) {
	if cache != nil {
		if status, ok := cache.CompanyStatus(ctx, companyID); ok {
			return status, nil
		}
	}
	status, err := source.CompanyStatus(ctx, companyID)
	if err != nil {
		return "", err
	}
	if cache != nil {
		cache.CacheCompanyStatus(ctx, companyID, status)
	}
	return status, nil
}

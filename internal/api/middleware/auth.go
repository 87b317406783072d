package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hrplatform/docingest/internal/api"
)

type contextKey string

const CompanyIDKey contextKey = "company_id"

// CompanyIDHeader is set on the request after authentication so outer
// middleware (access log, sentry) can see the tenant once the chain unwinds.
const CompanyIDHeader = "X-Company-ID"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// A client-supplied tenant header is never trusted.
			r.Header.Del(CompanyIDHeader)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			companyID, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			r.Header.Set(CompanyIDHeader, companyID)
			ctx := context.WithValue(r.Context(), CompanyIDKey, companyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetCompanyID(ctx context.Context) string {
	companyID, _ := ctx.Value(CompanyIDKey).(string)
	return companyID
}

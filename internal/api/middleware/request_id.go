package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

const RequestIDKey contextKey = "request_id"

// RequestID tags each request with a UUID, reusing the caller's X-Request-ID
// when it is one. Anything else is replaced so log lines stay parseable.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		if given, err := uuid.Parse(r.Header.Get(RequestIDHeader)); err == nil {
			requestID = given.String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// Logger returns base annotated with the request and tenant of ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		base = base.With("request_id", id)
	}
	if companyID := GetCompanyID(ctx); companyID != "" {
		base = base.With("company_id", companyID)
	}
	return base
}

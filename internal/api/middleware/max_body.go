package middleware

import (
	"net/http"

	"github.com/hrplatform/docingest/internal/api"
	"github.com/hrplatform/docingest/internal/domain"
)

// MaxBodyBytes caps request bodies at limit. Declared lengths over the cap are
// refused before the body is read; chunked bodies fail on read with
// http.MaxBytesError, which the handlers map to the same 413.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.HandleError(w, domain.ErrFileTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

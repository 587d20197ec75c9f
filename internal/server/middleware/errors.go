package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/hirelane/internal/errors"
	"github.com/3leaps/hirelane/internal/observability"
)

// Recovery turns a panic in a handler into a 500 error envelope. The panic
// value and stack go to the server log only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			observability.ServerLogger.Error("Recovered from panic",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", observability.RequestID(r.Context())),
				zap.ByteString("stack", debug.Stack()))

			apperrors.WriteError(w, r, http.StatusInternalServerError, apperrors.CodeInternal, "internal server error", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

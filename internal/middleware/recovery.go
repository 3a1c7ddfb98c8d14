package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"hugchat/internal/httputil"
)

// Recovery turns a handler panic into a 500 problem response. Panics on a
// conversation stream abort the NDJSON body mid-flight instead; the
// generation pipeline keeps persisting independently of the response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						slog.Any("error", err),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("session_id", httputil.GetSessionID(r)),
						slog.String("stack", string(debug.Stack())),
					)

					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware authenticates "Authorization: Bearer <token>" when present.
// Requests without a token pass through anonymously; handlers that need a
// caller check FromContext. A malformed or expired token is rejected.
func Middleware(tokens *Tokens, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				unauthorized(w)
				return
			}
			caller, err := tokens.Verify(strings.TrimSpace(raw))
			if err != nil {
				logger.Debugw("rejected bearer token", "error", err, "path", r.URL.Path)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"status":"fail","message":"invalid or expired token"}`))
}

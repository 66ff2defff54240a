package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Middleware enforces an authenticated operator on protected routes.
type Middleware struct {
	Verifier Verifier
}

// RequireOperator rejects the request unless a valid bearer token identifies
// the acting cashier; on success the operator is attached to the context.
func (m Middleware) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		op, err := m.Verifier.ParseOperator(token)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithOperator(r.Context(), op)))
	})
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

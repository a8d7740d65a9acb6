package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zealess/doj-backend/internal/token"
)

// unexported, collision-proof context keys
type subjectContextKeyType struct{}
type roleContextKeyType struct{}

var (
	subjectKey = subjectContextKeyType{}
	roleKey    = roleContextKeyType{}
)

// SubjectFromContext extracts the authenticated account ID from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(subjectKey).(string)
	return id, ok
}

// RoleFromContext extracts the caller's internal role from context.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleKey).(string)
	return role, ok
}

type AuthMiddleware struct {
	Codec *token.Codec
}

func NewAuthMiddleware(codec *token.Codec) *AuthMiddleware {
	return &AuthMiddleware{Codec: codec}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Read bearer token
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if raw == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// 2. Verify as a session credential; link-state tokens do not
		//    authenticate API calls.
		claims, err := a.Codec.Verify(raw, token.PurposeSession)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// 3. Attach subject and role to context
		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		ctx = context.WithValue(ctx, roleKey, claims.Role)

		// 4. Continue request
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

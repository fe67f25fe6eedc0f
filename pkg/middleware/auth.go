// pkg/middleware/auth.go
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"quotebot/pkg/jwt"
)

type contextKey string

// OperatorKey ключ контекста с subject из JWT оператора
const OperatorKey contextKey = "operator"

// BasicAuth возвращает middleware для базовой аутентификации
func BasicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)

			user, pass, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Сравнение за константное время
			if !constantTimeCompare(user, username) || !constantTimeCompare(pass, password) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// JWTAuth пропускает запросы с валидным Bearer токеном оператора
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			sub, err := jwt.ParseToken(secret, parts[1])
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), OperatorKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func constantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

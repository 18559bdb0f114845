package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// CookieName is the cookie set after a successful login.
const CookieName = "authenticated"

// SessionToken derives the cookie value from the password, so a cookie stops
// working as soon as the password changes.
func SessionToken(password string) string {
	sum := sha256.Sum256([]byte("blackframe:" + password))
	return hex.EncodeToString(sum[:])
}

// AuthMiddleware sprawdza, czy żądanie ma poprawny token (nagłówek Bearer albo cookie).
// Pusty password wyłącza uwierzytelnianie.
func AuthMiddleware(password string) func(http.Handler) http.Handler {
	token := SessionToken(password)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" || r.URL.Path == "/auth/login" {
				next.ServeHTTP(w, r)
				return
			}

			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				given := strings.TrimPrefix(auth, "Bearer ")
				if subtle.ConstantTimeCompare([]byte(given), []byte(password)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			if cookie, err := r.Cookie(CookieName); err == nil &&
				subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

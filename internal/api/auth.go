package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth is middleware that rejects any request whose Authorization
// header does not carry the configured token. The comparison is constant
// time so a caller cannot learn how much of a guessed token matched.
// Rejections use the standard error envelope with type authentication_error.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

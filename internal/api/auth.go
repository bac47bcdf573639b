package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type ctxKey int

const ownerKey ctxKey = 0

// BearerAuth maps bearer tokens to user IDs. Every request must present a
// known token; the resolved user ID becomes the owner scope for everything
// downstream. An empty token map rejects all requests.
func BearerAuth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			presented := []byte(auth[len(prefix):])

			var owner string
			for token, userID := range tokens {
				if subtle.ConstantTimeCompare(presented, []byte(token)) == 1 {
					owner = userID
				}
			}
			if owner == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
		})
	}
}

// OwnerID returns the authenticated user ID stored by BearerAuth.
func OwnerID(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

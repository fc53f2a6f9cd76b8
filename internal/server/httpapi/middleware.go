package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/daybook-app/daybook/internal/common"
)

type ctxKey int

const ctxKeyUserID ctxKey = iota

// tokenVerifier is the slice of UserService the middleware needs.
type tokenVerifier interface {
	VerifyAccessToken(tokenString string) (string, error)
}

// withAuth verifies the bearer token and stores the user id in the request
// context. An expired token gets its own error code so clients can refresh
// instead of logging out.
func withAuth(verifier tokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing bearer token")
				return
			}
			userID, err := verifier.VerifyAccessToken(token)
			if err != nil {
				if errors.Is(err, common.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, common.CodeTokenExpired, "token expired")
					return
				}
				writeError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// userID returns the authenticated user id placed by withAuth.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

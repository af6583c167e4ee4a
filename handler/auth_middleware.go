package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-bank-gate/common"
	"go-bank-gate/logger"
	"go-bank-gate/model"
	"go-bank-gate/service"
)

type contextKey string

const (
	UserIDKey      contextKey = "userID"
	UserEmailKey   contextKey = "userEmail"
	AccessTokenKey contextKey = "accessToken"
	claimsKey      contextKey = "claims"
)

// Authenticator verifies an access token and checks it against the blacklist.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.AccessClaims, error)
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// scheme must match exactly.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func withIdentity(r *http.Request, claims *model.AccessClaims, token string) *http.Request {
	ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
	ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
	ctx = context.WithValue(ctx, AccessTokenKey, token)
	ctx = context.WithValue(ctx, claimsKey, claims)
	return r.WithContext(ctx)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func claimsFromContext(ctx context.Context) (*model.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*model.AccessClaims)
	return claims, ok
}

// IdentityMiddleware attaches the caller's identity when the request carries
// a valid bearer token. Requests without one continue anonymously. Paths
// under skipPaths are passed through untouched; they are rate limited by IP
// and do their own authentication where needed.
func IdentityMiddleware(auth Authenticator, skipPaths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || isAuthPath(r.URL.Path, skipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrStoreUnavailable) {
					logger.Log.WithError(err).Warn("Identity lookup skipped: store unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, withIdentity(r, claims, token))
		})
	}
}

// AuthMiddleware rejects requests without a valid, non-revoked access token.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := claimsFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				common.NewAppError(http.StatusUnauthorized, "Invalid or expired token", nil).Send(w)
				return
			}

			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				toAppError(err, "Invalid or expired token").Send(w)
				return
			}

			next.ServeHTTP(w, withIdentity(r, claims, token))
		})
	}
}

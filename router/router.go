package router

import (
	"net/http"

	_ "go-bank-gate/docs"
	"go-bank-gate/handler"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// NewRouter wires the HTTP surface. Every request first passes identity
// extraction (skipped on authPaths), then the rate limit gate.
func NewRouter(
	authHandler *handler.AuthHandler,
	rateLimitHandler *handler.RateLimitHandler,
	authenticator handler.Authenticator,
	governor handler.RateGovernor,
	authPaths []string,
) http.Handler {
	mux := http.NewServeMux()
	requireAuth := handler.AuthMiddleware(authenticator)

	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	mux.Handle("POST /api/auth/login", handler.ErrorHandlingMiddleware(authHandler.Login))
	mux.Handle("POST /api/auth/refresh", handler.ErrorHandlingMiddleware(authHandler.Refresh))
	mux.Handle("POST /api/auth/logout", requireAuth(handler.ErrorHandlingMiddleware(authHandler.Logout)))
	mux.Handle("GET /api/auth/me", requireAuth(handler.ErrorHandlingMiddleware(authHandler.Me)))

	mux.Handle("GET /api/rate-limit/status", handler.ErrorHandlingMiddleware(rateLimitHandler.Status))

	gated := handler.RateLimitMiddleware(governor, authPaths)(mux)
	return handler.IdentityMiddleware(authenticator, authPaths)(gated)
}

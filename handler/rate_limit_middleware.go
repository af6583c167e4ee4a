package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go-bank-gate/common"
	"go-bank-gate/logger"
	"go-bank-gate/model"

	"github.com/sirupsen/logrus"
)

const resetTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// RateGovernor decides whether one more request fits the caller's budget.
type RateGovernor interface {
	CheckGeneral(ctx context.Context, identifier string) (model.RateLimitDecision, error)
	CheckAuth(ctx context.Context, ip string) (model.RateLimitDecision, error)
}

// ClientIP returns the originating address of r: the first X-Forwarded-For
// hop, then X-Real-IP, then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func isAuthPath(path string, authPaths []string) bool {
	for _, p := range authPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RateLimitMiddleware applies the auth policy to authPaths, keyed by client
// IP, and the general policy to everything else, keyed by user id when the
// request is authenticated. Any failure of the governor lets the request
// through.
func RateLimitMiddleware(governor RateGovernor, authPaths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authClass := isAuthPath(r.URL.Path, authPaths)
			identifier := ClientIP(r)
			if !authClass {
				if userID, ok := UserIDFromContext(r.Context()); ok {
					identifier = userID
				}
			}

			decision, err := check(r.Context(), governor, authClass, identifier)
			if err != nil {
				logger.Log.WithError(err).WithFields(logrus.Fields{
					"path":      r.URL.Path,
					"fail_open": true,
				}).Error("Rate limit middleware error")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", decision.ResetTime.UTC().Format(resetTimeLayout))

			if !decision.Allowed {
				logger.Log.WithFields(logrus.Fields{
					"identifier": identifier,
					"path":       r.URL.Path,
					"auth_path":  authClass,
				}).Warn("Rate limit exceeded")
				h.Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				common.NewTooManyRequestsError(decision.RetryAfter).Send(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// check calls the governor and turns a panic into an error.
func check(ctx context.Context, governor RateGovernor, authClass bool, identifier string) (decision model.RateLimitDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rate governor panic: %v", rec)
		}
	}()

	if authClass {
		return governor.CheckAuth(ctx, identifier)
	}
	return governor.CheckGeneral(ctx, identifier)
}

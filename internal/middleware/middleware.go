package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/context"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/response"

	"github.com/tomasen/realip"
)

const apiKeyHeader = "X-Api-Key"

type Middleware struct {
	errHandler *errHandler.ErrorRepository
	logger     *slog.Logger
	gate       *auth.Gate
}

func New(errHandler *errHandler.ErrorRepository, logger *slog.Logger, gate *auth.Gate) *Middleware {
	return &Middleware{
		errHandler: errHandler,
		logger:     logger,
		gate:       gate,
	}
}

func (mid *Middleware) RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err != nil {
				mid.errHandler.ServerError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) LogAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := response.NewMetricsResponseWriter(w)
		next.ServeHTTP(mw, r)

		var (
			ip     = realip.FromRequest(r)
			method = r.Method
			url    = r.URL.String()
			proto  = r.Proto
		)

		userAttrs := slog.Group("user", "ip", ip)
		requestAttrs := slog.Group("request", "method", method, "url", url, "proto", proto)
		responseAttrs := slog.Group("response", "status", mw.StatusCode, "size", mw.BytesCount)

		mid.logger.Info("access", userAttrs, requestAttrs, responseAttrs)
	})
}

// Authenticate resolves either a Bearer session token or an API key into an
// auth context. An absent credential passes through anonymously; a present
// but bad credential is rejected here, before any handler runs.
func (mid *Middleware) Authenticate(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")
		w.Header().Add("Vary", apiKeyHeader)

		authorizationHeader := r.Header.Get("Authorization")

		if authorizationHeader != "" {
			headerParts := strings.Split(authorizationHeader, " ")

			if len(headerParts) == 2 && headerParts[0] == "Bearer" {
				authCtx, err := mid.gate.VerifySession(r.Context(), headerParts[1])
				if err != nil {
					mid.errHandler.DomainError(w, r, err)
					return
				}

				r = context.ContextSetAuth(r, authCtx)
			}
		} else if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
			authCtx, err := mid.gate.VerifyAPIKey(r.Context(), apiKey)
			if err != nil {
				mid.errHandler.DomainError(w, r, err)
				return
			}

			r = context.ContextSetAuth(r, authCtx)
		}

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := context.ContextGetAuth(r)

		if authCtx == nil {
			mid.errHandler.AuthenticationRequired(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequirePermission gates an endpoint on a capability. Session credentials
// always pass; API keys pass only when the capability was granted at issue
// time.
func (mid *Middleware) RequirePermission(permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := context.ContextGetAuth(r)

		if authCtx == nil {
			mid.errHandler.AuthenticationRequired(w, r)
			return
		}

		if !authCtx.Can(permission) {
			mid.errHandler.DomainError(w, r, auth.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireSession restricts key-management endpoints to interactive sessions,
// an API key can never mint or revoke other keys.
func (mid *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := context.ContextGetAuth(r)

		if authCtx == nil {
			mid.errHandler.AuthenticationRequired(w, r)
			return
		}

		if authCtx.Credential != auth.CredentialSession {
			mid.errHandler.DomainError(w, r, auth.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

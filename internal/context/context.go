package context

import (
	"context"
	"net/http"

	"github.com/kudiwallet/kudi/internal/auth"
)

type contextKey string

const (
	authContextKey = contextKey("authContext")
)

func ContextSetAuth(r *http.Request, authCtx *auth.Context) *http.Request {
	ctx := context.WithValue(r.Context(), authContextKey, authCtx)
	return r.WithContext(ctx)
}

func ContextGetAuth(r *http.Request) *auth.Context {
	authCtx, ok := r.Context().Value(authContextKey).(*auth.Context)
	if !ok {
		return nil
	}

	return authCtx
}

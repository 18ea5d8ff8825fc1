package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
)

// actorKey keys the session subject that BearerMiddleware attaches to a request.
type actorKey struct{}

// withActor returns ctx carrying the session subject. uuid.Nil is never stored.
func withActor(ctx context.Context, id uuid.UUID) context.Context {
	if id == uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, id)
}

// actorFrom returns the session subject of an authenticated request.
func actorFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// requireActor is actorFrom for handlers behind BearerMiddleware.
func requireActor(c echo.Context) (uuid.UUID, error) {
	id, ok := actorFrom(c.Request().Context())
	if !ok {
		return uuid.Nil, errUnauthenticated
	}
	return id, nil
}

// bearerToken extracts the session token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	for _, v := range r.Header.Values(echo.HeaderAuthorization) {
		scheme, tok, ok := strings.Cut(strings.TrimSpace(v), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			continue
		}
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok, true
		}
	}
	return "", false
}

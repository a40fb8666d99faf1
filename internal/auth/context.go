package auth

import (
	"context"
	"errors"
)

type contextKey string

const clientIDKey contextKey = "auth.clientID"

var ErrUnauthenticated = errors.New("unauthenticated")

func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

func ClientIDFromContext(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrUnauthenticated
	}
	if raw, ok := ctx.Value(clientIDKey).(string); ok && raw != "" {
		return raw, nil
	}
	return "", ErrUnauthenticated
}

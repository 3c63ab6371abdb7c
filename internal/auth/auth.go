// Package auth carries the authenticated caller identity through a request
// context. Authentication itself happens upstream; lingua only consumes the
// resulting user ID.
package auth

import (
	"context"
	"strings"

	"github.com/scrypster/lingua/internal/apperr"
)

type ctxKey struct{}

// WithUser returns a context carrying userID as the authenticated caller.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(userID))
}

// UserID returns the authenticated caller, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Require returns the authenticated caller or an Unauthenticated error
// attributed to op.
func Require(ctx context.Context, op string) (string, error) {
	id, ok := UserID(ctx)
	if !ok {
		return "", apperr.Unauthenticated(op)
	}
	return id, nil
}

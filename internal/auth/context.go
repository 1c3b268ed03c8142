package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxRepID ctxKey = iota
	ctxRole
)

func WithIdentity(ctx context.Context, repID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxRepID, repID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func RepID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRepID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("rep_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

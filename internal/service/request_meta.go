package service

import (
	"context"

	"github.com/noah-isme/auth-api/internal/models"
)

type requestMetaKey struct{}

// WithRequestMeta attaches client details used by audit entries.
func WithRequestMeta(ctx context.Context, meta models.RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the client details stored in ctx, if any.
func RequestMetaFrom(ctx context.Context) models.RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(models.RequestMeta)
	return meta
}

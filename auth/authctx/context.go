// Package authctx carries authenticated claims through a request context.
//
//	ctx = authctx.Set(ctx, claims)
//	claims, ok := authctx.Get[*auth.OperatorClaims](ctx)
package authctx

import "context"

type contextKey struct{}

// Set stores claims in ctx.
func Set(ctx context.Context, claims any) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// Get returns the claims in ctx if present and of type T.
func Get[T any](ctx context.Context) (T, bool) {
	claims, ok := ctx.Value(contextKey{}).(T)
	return claims, ok
}

package changedesk

import "context"

type ctxKey string

const (
	ctxKeyIdentity ctxKey = "changedesk_identity"
	ctxKeyLocation ctxKey = "changedesk_location"
)

// WithIdentity stores a copy of the identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return context.WithValue(ctx, ctxKeyIdentity, (*Identity)(nil))
	}
	cp := *id
	return context.WithValue(ctx, ctxKeyIdentity, &cp)
}

// IdentityFromContext extracts the identity from the context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return v
}

// WithLocation stores the path being rendered in the context.
func WithLocation(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ctxKeyLocation, path)
}

// LocationFromContext extracts the path being rendered from the context.
func LocationFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyLocation).(string)
	return v
}

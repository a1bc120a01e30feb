package contracts

import "context"

type contextKey string

const principalKey contextKey = "principal"

// SystemPrincipal is recorded as the actor when no caller identity is attached.
const SystemPrincipal = "system"

// WithPrincipal attaches an authenticated principal identifier to the context.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey, principalID)
}

// PrincipalFrom returns the principal attached to ctx, or SystemPrincipal.
func PrincipalFrom(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey).(string); ok && p != "" {
		return p
	}
	return SystemPrincipal
}

const requestInfoKey contextKey = "request_info"

// RequestInfo describes where a call came from. It is copied into audit metadata.
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string
}

// WithRequestInfo attaches caller network details to the context.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFrom returns the request details attached to ctx, if any.
func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(RequestInfo)
	return info, ok
}

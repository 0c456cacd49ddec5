package vkauth

import "context"

type contextKey uint8

const (
	clientIPKey contextKey = iota
	userAgentKey
)

// WithClientIP describes the withclientip operation and its observable behavior.
//
// WithClientIP may return an error when input validation, dependency calls, or security checks fail.
// WithClientIP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext describes the clientipfromcontext operation and its observable behavior.
//
// ClientIPFromContext may return an error when input validation, dependency calls, or security checks fail.
// ClientIPFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// WithUserAgent describes the withuseragent operation and its observable behavior.
//
// WithUserAgent may return an error when input validation, dependency calls, or security checks fail.
// WithUserAgent does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey, ua)
}

// UserAgentFromContext describes the useragentfromcontext operation and its observable behavior.
//
// UserAgentFromContext may return an error when input validation, dependency calls, or security checks fail.
// UserAgentFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey).(string)
	return ua
}

package levelAuth

import "context"

// requestInfoKey indexes the request facts copied into audit events.
type requestInfoKey int

const (
	clientIPKey requestInfoKey = iota
	userAgentKey
	requestIDKey
)

// WithClientIP attaches the caller's IP address to ctx for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithUserAgent attaches the browser's User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// WithRequestID attaches the request correlation id so audit events can be
// joined with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestInfo(ctx context.Context, key requestInfoKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func clientIPFromContext(ctx context.Context) string  { return requestInfo(ctx, clientIPKey) }
func userAgentFromContext(ctx context.Context) string { return requestInfo(ctx, userAgentKey) }
func requestIDFromContext(ctx context.Context) string { return requestInfo(ctx, requestIDKey) }

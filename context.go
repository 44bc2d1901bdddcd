package stationauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type locationContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine stamps
// it onto audit entries, devices, and sessions.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the browser User-Agent string to ctx. Device
// records are derived from it at session start.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithLocation attaches a coarse geographic label to ctx for audit and
// device records. The engine treats it as opaque.
func WithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, locationContextKey{}, location)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ua, _ := ctx.Value(userAgentContextKey{}).(string)
	return ua
}

func locationFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	loc, _ := ctx.Value(locationContextKey{}).(string)
	return loc
}

package sessionkit

import (
	"context"

	"github.com/minyanlabs/sessionkit/session"
)

type clientIPContextKey struct{}
type deviceLabelContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records
// it on session rows and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDeviceLabel attaches a human-readable device description to ctx.
// It shows up in session listings so users can recognize their devices.
func WithDeviceLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, deviceLabelContextKey{}, label)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func deviceLabelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	label, _ := ctx.Value(deviceLabelContextKey{}).(string)
	return label
}

func deviceFromContext(ctx context.Context) session.DeviceMeta {
	return session.DeviceMeta{
		Label:    deviceLabelFromContext(ctx),
		ClientIP: clientIPFromContext(ctx),
	}
}

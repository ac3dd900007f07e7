// Package requestid provides request ID propagation via context and a
// fiber middleware that assigns one per request.
package requestid

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ctxKey struct{}

const headerName = "X-Request-Id"

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx, or generates a new one if
// absent.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Middleware assigns a request ID (reusing an inbound X-Request-Id header
// if present), stores it on the fiber context, and echoes it in the
// response.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerName)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(headerName, id)
		c.Set(headerName, id)
		return c.Next()
	}
}

// FromFiber reads the request ID assigned by Middleware.
func FromFiber(c *fiber.Ctx) string {
	if id, ok := c.Locals(headerName).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

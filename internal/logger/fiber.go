package logger

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestID assigns a request id to every inbound request, echoes it in the
// X-Request-ID response header and stores it in the user context for
// FromContext callers.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Request-ID", id)
		c.SetUserContext(WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

// FiberMiddleware logs each request through slog with the shared schema:
// time, level, msg at root and everything else under the `data` group.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		attrs := []any{
			"status", c.Response().StatusCode(),
			"method", c.Method(),
			"path", c.OriginalURL(),
			"ip", c.IP(),
			"user_agent", c.Get("User-Agent"),
			"latency_ms", float64(latency.Microseconds()) / 1000.0,
		}
		if id := c.Get("X-Request-ID"); id != "" {
			attrs = append(attrs, "request_id", id)
		}

		if err != nil {
			slog.Error("http request", append(attrs, "err", err.Error())...)
			return err
		}
		slog.Info("http request", attrs...)
		return nil
	}
}

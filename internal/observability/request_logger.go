package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

const unmatchedRoute = "unmatched"

// RouteLabels returns the registered route template and method of the
// request, copied out of fasthttp's reused buffers so they can be kept as
// metric label values. Requests that matched no route share one label.
func RouteLabels(c *fiber.Ctx) (route, method string) {
	route = unmatchedRoute
	// fiber fabricates a handler-less route from the raw path when nothing matched
	if r := c.Route(); r != nil && len(r.Handlers) > 0 && r.Path != "" {
		route = utils.CopyString(r.Path)
	}
	return route, utils.CopyString(c.Method())
}

// RequestLogger logs each request and records its metrics. It must run
// after the error middleware has rendered the response so the final status
// is visible.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		route, method := RouteLabels(c)
		metrics.RecordRequest(route, method, status, elapsed)

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("ip", c.IP()),
		}
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
		return err
	}
}

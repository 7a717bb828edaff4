package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/accesslog"
)

const routeInfoLocalsKey = "gateway.route_info"

// RouteInfo is the routing decision a /v1/* handler records for the access
// log to pick up after the request completes.
type RouteInfo struct {
	Backend string
	Model   string
	Reason  string
}

// SetRouteInfo stashes the routing decision for AccessLog to read.
func SetRouteInfo(c *fiber.Ctx, info RouteInfo) {
	c.Locals(routeInfoLocalsKey, info)
}

// AccessLog appends one entry per request to w once the response is
// written. A nil w disables logging without branching at call sites.
func AccessLog(w *accesslog.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		info, _ := c.Locals(routeInfoLocalsKey).(RouteInfo)
		w.Log(accesslog.Entry{
			Time:       start,
			Method:     c.Method(),
			Path:       c.Path(),
			Status:     c.Response().StatusCode(),
			Backend:    info.Backend,
			Model:      info.Model,
			Reason:     info.Reason,
			DurationMS: time.Since(start).Milliseconds(),
		})
		return err
	}
}

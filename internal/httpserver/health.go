package httpserver

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// livez implements the public GET /health liveness probe.
func (h *handlers) livez(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// upstreamsHealth implements GET /health/upstreams: a forced, synchronous
// probe of every backend, independent of the cached sweep snapshot.
func (h *handlers) upstreamsHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	upstreams := make(fiber.Map)
	overall := true
	for _, bc := range h.container.Registry.Iter() {
		ok, err := h.container.Health.Probe(ctx, bc.Name)
		entry := fiber.Map{"ok": ok}
		if err != nil {
			entry["error"] = err.Error()
		} else {
			entry["status"] = "ok"
		}
		upstreams[bc.Name] = entry
		overall = overall && ok
	}

	return c.JSON(fiber.Map{"ok": overall, "upstreams": upstreams})
}

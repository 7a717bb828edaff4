package httpserver

import "github.com/gofiber/fiber/v2"

// gatewayStatus implements GET /v1/gateway/status. It reads the admission
// and health tables directly without taking admission itself, so the
// endpoint stays observable while backends are saturated.
func (h *handlers) gatewayStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"admission_control": h.container.Admission.Stats(),
		"backend_health":    h.container.Health.All(),
		"build":             h.container.BuildVersion,
	})
}

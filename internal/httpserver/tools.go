package httpserver

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/httpserver/middleware"
	"github.com/localai/gateway/internal/toolbus"
)

// listTools implements GET /v1/tools.
func (h *handlers) listTools(c *fiber.Ctx) error {
	allowed := middleware.AllowedTools(c)
	return c.JSON(fiber.Map{"tools": h.container.ToolBus.List(allowed)})
}

// invokeTool implements POST /v1/tools/{name}.
func (h *handlers) invokeTool(c *fiber.Ctx) error {
	name := c.Params("name")
	allowed := middleware.AllowedTools(c)

	var wire wireToolInvokeRequest
	if err := c.BodyParser(&wire); err != nil {
		return writeJSONError(c, http.StatusBadRequest, "invalid_arguments", "malformed request body")
	}

	inv := h.container.ToolBus.Invoke(c.UserContext(), name, wire.Arguments, allowed)

	status := statusForOutcome(inv.Outcome)
	return c.Status(status).JSON(fiber.Map{
		"replay_id":    inv.ReplayID,
		"tool_name":    inv.ToolName,
		"request_hash": inv.RequestHash,
		"started_at":   inv.StartedAt,
		"ended_at":     inv.EndedAt,
		"outcome":      inv.Outcome,
		"result":       inv.Result,
		"error":        inv.Error,
	})
}

func statusForOutcome(outcome toolbus.Outcome) int {
	switch outcome {
	case toolbus.OutcomeDenied:
		return http.StatusForbidden
	case toolbus.OutcomeNotFound:
		return http.StatusNotFound
	case toolbus.OutcomeInvalidArguments:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

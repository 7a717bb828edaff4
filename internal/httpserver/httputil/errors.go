package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/gatewayerr"
)

// retryAfterByKind names the Retry-After seconds for error kinds the client
// is expected to retry, per the admission and health gate contracts.
var retryAfterByKind = map[gatewayerr.Kind]string{
	gatewayerr.BackendOverloaded: "5",
	gatewayerr.BackendNotReady:   "30",
}

// WriteError standardizes the JSON error body: {"error": kind, "message":
// ..., ...fields}, with Retry-After set for overload/not-ready kinds.
func WriteError(c *fiber.Ctx, err error) error {
	ge := gatewayerr.As(err)

	if retryAfter, ok := retryAfterByKind[ge.Kind]; ok {
		c.Set(fiber.HeaderRetryAfter, retryAfter)
	}

	body := fiber.Map{"error": string(ge.Kind), "message": ge.Message}
	for k, v := range ge.Fields {
		body[k] = v
	}

	status := ge.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(body)
}

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/openai/openai-go/v3"

	"github.com/localai/gateway/internal/admission"
	"github.com/localai/gateway/internal/app"
	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/router"
	"github.com/localai/gateway/internal/upstream"
)

// handlers binds every route to the shared container.
type handlers struct {
	container *app.Container
}

func newHandlers(container *app.Container) *handlers {
	return &handlers{container: container}
}

// checkRoutable maps the health gate contract (spec §4.3) to a typed error.
func (h *handlers) checkRoutable(backend string) error {
	if h.container.Health.IsRoutable(backend) {
		return nil
	}
	snap := h.container.Health.Snapshot(backend)
	return gatewayerr.New(gatewayerr.BackendNotReady, "backend is not currently ready").
		WithField("backend", backend).
		WithField("health_error", snap.LastError)
}

// acquire wraps admission.TryAcquire, translating a rejection into the
// typed error the handlers share.
func (h *handlers) acquire(decision *router.Decision, routeKind string) (*admission.Slot, error) {
	slot, err := h.container.Admission.TryAcquire(decision.BackendName, routeKind)
	if err == nil {
		return slot, nil
	}
	var rejected *admission.RejectedError
	if errors.As(err, &rejected) && rejected.Reason == admission.ReasonOverloaded {
		return nil, gatewayerr.New(gatewayerr.BackendOverloaded, "backend is at capacity for this route").
			WithField("backend_class", decision.BackendClass).
			WithField("route_kind", routeKind)
	}
	return nil, gatewayerr.Newf(gatewayerr.ConfigInvalid, "route kind %q is not admitted for backend %q", routeKind, decision.BackendName)
}

// translateUpstreamErr maps a raw upstream transport error to its gateway
// kind, distinguishing a timed-out context from any other failure and
// echoing the upstream's own 4xx rather than masking it behind a 502.
func translateUpstreamErr(err error, ctx context.Context) *gatewayerr.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return gatewayerr.New(gatewayerr.UpstreamTimeout, "upstream did not respond in time").Wrap(err)
	}
	return gatewayerr.New(gatewayerr.UpstreamHTTPError, err.Error()).WithStatus(upstreamStatus(err)).Wrap(err)
}

// upstreamStatus extracts the status code an upstream reported, echoing a
// 4xx to the client and collapsing everything else (including a 5xx) to a
// generic 502.
func upstreamStatus(err error) int {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500 {
		return statusErr.Status
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

func writeJSONError(c *fiber.Ctx, status int, token, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": token, "message": message})
}

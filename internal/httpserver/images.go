package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/httpserver/httputil"
	"github.com/localai/gateway/internal/httpserver/middleware"
	"github.com/localai/gateway/internal/images"
)

const routeKindImages = "images"

// imageGenerations implements POST /v1/images/generations.
func (h *handlers) imageGenerations(c *fiber.Ctx) error {
	var wire wireImageRequest
	if err := c.BodyParser(&wire); err != nil {
		return httputil.WriteError(c, gatewayerr.New(gatewayerr.InvalidArguments, "malformed request body").Wrap(err))
	}
	req := wire.toModel()

	decision, err := h.container.Router.Route(routeKindImages, req.Model)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	if err := h.checkRoutable(decision.BackendName); err != nil {
		return httputil.WriteError(c, err)
	}

	slot, err := h.acquire(decision, routeKindImages)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	defer func() { _ = h.container.Admission.Release(slot) }()

	bc, err := h.container.Registry.Lookup(decision.BackendName)
	if err != nil {
		return httputil.WriteError(c, gatewayerr.New(gatewayerr.ConfigInvalid, "routed backend is no longer registered"))
	}
	req.Model = decision.UpstreamModel

	c.Set("X-Backend-Used", decision.BackendName)
	c.Set("X-Model-Used", decision.UpstreamModel)
	c.Set("X-Router-Reason", string(decision.Reason))
	middleware.SetRouteInfo(c, middleware.RouteInfo{
		Backend: decision.BackendName,
		Model:   decision.UpstreamModel,
		Reason:  string(decision.Reason),
	})

	timeout := h.container.Config.Server.ImagesReadTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := h.container.Images.Generate(ctx, images.Decision{
		BackendName:   decision.BackendName,
		BackendClass:  decision.BackendClass,
		UpstreamModel: decision.UpstreamModel,
	}, bc.PayloadPolicy, req)
	latency := time.Since(start)
	if err != nil {
		ge := gatewayerr.As(err)
		if h.container.Observability != nil {
			h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindImages, ge.Status, latency)
		}
		return httputil.WriteError(c, ge)
	}
	if h.container.Observability != nil {
		h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindImages, http.StatusOK, latency)
		h.container.Observability.RecordTokens(decision.BackendName, decision.UpstreamModel, routeKindImages, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	}
	return c.JSON(resp)
}

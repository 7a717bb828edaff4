package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/httpserver/httputil"
	"github.com/localai/gateway/internal/httpserver/middleware"
)

const routeKindEmbeddings = "embeddings"

// embeddings implements POST /v1/embeddings.
func (h *handlers) embeddings(c *fiber.Ctx) error {
	var wire wireEmbeddingsRequest
	if err := c.BodyParser(&wire); err != nil {
		return httputil.WriteError(c, gatewayerr.New(gatewayerr.InvalidArguments, "malformed request body").Wrap(err))
	}
	req := wire.toModel()

	decision, err := h.container.Router.Route(routeKindEmbeddings, req.Model)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	if err := h.checkRoutable(decision.BackendName); err != nil {
		return httputil.WriteError(c, err)
	}

	slot, err := h.acquire(decision, routeKindEmbeddings)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	defer func() { _ = h.container.Admission.Release(slot) }()

	client, ok := h.container.EmbeddingsClients[decision.BackendName]
	if !ok {
		return httputil.WriteError(c, gatewayerr.Newf(gatewayerr.ConfigInvalid, "backend %q has no embeddings client configured", decision.BackendName))
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

	timeout := h.container.Config.Server.ChatReadTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Embed(ctx, req)
	latency := time.Since(start)
	if err != nil {
		ge := translateUpstreamErr(err, ctx)
		if h.container.Observability != nil {
			h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindEmbeddings, ge.Status, latency)
		}
		return httputil.WriteError(c, ge)
	}
	if h.container.Observability != nil {
		h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindEmbeddings, http.StatusOK, latency)
		h.container.Observability.RecordTokens(decision.BackendName, decision.UpstreamModel, routeKindEmbeddings, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	}
	return c.JSON(resp)
}

package httpserver

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/app"
	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/httpserver/httputil"
	"github.com/localai/gateway/internal/httpserver/middleware"
	"github.com/localai/gateway/internal/models"
	"github.com/localai/gateway/internal/router"
	"github.com/localai/gateway/internal/streaming"
)

const routeKindChat = "chat"

// chatCompletions implements POST /v1/chat/completions: admission- and
// health-gated routing to a chat backend, one-shot JSON or SSE depending on
// the client's stream flag.
func (h *handlers) chatCompletions(c *fiber.Ctx) error {
	var wire wireChatRequest
	if err := c.BodyParser(&wire); err != nil {
		return httputil.WriteError(c, gatewayerr.New(gatewayerr.InvalidArguments, "malformed request body").Wrap(err))
	}
	req := wire.toModel()

	decision, err := h.container.Router.Route(routeKindChat, req.Model)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	if err := h.checkRoutable(decision.BackendName); err != nil {
		return httputil.WriteError(c, err)
	}

	slot, err := h.acquire(decision, routeKindChat)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	defer func() { _ = h.container.Admission.Release(slot) }()

	client, ok := h.container.ChatClients[decision.BackendName]
	if !ok {
		return httputil.WriteError(c, gatewayerr.Newf(gatewayerr.ConfigInvalid, "backend %q has no chat client configured", decision.BackendName))
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

	if req.Stream {
		return h.streamChat(c, decision, client, req)
	}
	return h.chatOnce(c, decision, client, req)
}

func (h *handlers) chatOnce(c *fiber.Ctx, decision *router.Decision, client app.ChatClient, req models.ChatRequest) error {
	timeout := h.container.Config.Server.ChatReadTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Chat(ctx, req)
	latency := time.Since(start)
	if err != nil {
		ge := translateUpstreamErr(err, ctx)
		if h.container.Observability != nil {
			h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindChat, ge.Status, latency)
		}
		return httputil.WriteError(c, ge)
	}
	if h.container.Observability != nil {
		h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindChat, http.StatusOK, latency)
		h.container.Observability.RecordTokens(decision.BackendName, decision.UpstreamModel, routeKindChat, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	}
	resp.Gateway = &models.GatewayInfo{
		Backend: decision.BackendName,
		Model:   decision.UpstreamModel,
		Reason:  string(decision.Reason),
	}
	return c.JSON(resp)
}

func (h *handlers) streamChat(c *fiber.Ctx, decision *router.Decision, client app.ChatClient, req models.ChatRequest) error {
	ctx, cancel := context.WithCancel(c.UserContext())

	chunks, closeStream, err := client.ChatStream(ctx, req)
	if err != nil {
		cancel()
		return httputil.WriteError(c, translateUpstreamErr(err, ctx))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	idleTimeout := h.container.Config.Server.StreamIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	emitsThinking := h.container.Registry.EmitsThinking(decision.BackendName)

	start := time.Now()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer func() { _ = closeStream() }()

		var usage models.Usage
		status := http.StatusOK
		recordAndReturn := func() {
			if h.container.Observability == nil {
				return
			}
			h.container.Observability.RecordUpstreamLatency(decision.BackendName, decision.UpstreamModel, routeKindChat, status, time.Since(start))
			h.container.Observability.RecordTokens(decision.BackendName, decision.UpstreamModel, routeKindChat, int64(usage.PromptTokens), int64(usage.CompletionTokens))
		}

		sse := streaming.NewWriter(w, w.Flush)
		if err := sse.Route(decision.BackendName, decision.UpstreamModel, string(decision.Reason)); err != nil {
			slog.Warn("sse route event write failed", slog.String("backend", decision.BackendName), slog.String("error", err.Error()))
			status = http.StatusBadGateway
			recordAndReturn()
			return
		}

		idle := time.NewTimer(idleTimeout)
		defer idle.Stop()

		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					_ = sse.Done()
					recordAndReturn()
					return
				}
				idle.Reset(idleTimeout)
				if chunk.Usage != nil {
					usage = *chunk.Usage
				}
				if chunk.IsUsageOnly() && !chunk.Done {
					// Trailing usage-only chunk some backends send before
					// closing the stream: nothing to emit as a delta.
					continue
				}

				delta, thinking, done := streaming.TranslateChunk(chunk)
				if emitsThinking && thinking != "" {
					if err := sse.Thinking(thinking); err != nil {
						slog.Warn("sse thinking event write failed", slog.String("backend", decision.BackendName), slog.String("error", err.Error()))
						status = http.StatusBadGateway
						recordAndReturn()
						return
					}
				}
				if delta != "" {
					if err := sse.Delta(delta); err != nil {
						slog.Warn("sse delta event write failed", slog.String("backend", decision.BackendName), slog.String("error", err.Error()))
						status = http.StatusBadGateway
						recordAndReturn()
						return
					}
				}
				if done {
					_ = sse.Done()
					recordAndReturn()
					return
				}
			case <-idle.C:
				_ = sse.Error(gatewayerr.New(gatewayerr.UpstreamTimeout, "upstream idle for too long without any bytes"))
				status = http.StatusGatewayTimeout
				recordAndReturn()
				return
			}
		}
	})
	return nil
}

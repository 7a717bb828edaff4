// Package images implements the capability- and admission-gated call to an
// image backend: response-format policy enforcement, content-addressed
// persistence for URL responses, and the `_gateway` echo object.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/models"
	"github.com/localai/gateway/internal/registry"
	"github.com/localai/gateway/internal/storage/blob"
	"github.com/localai/gateway/internal/upstream"
)

// Decision is the subset of a routing decision the pipeline needs.
type Decision struct {
	BackendName   string
	BackendClass  string
	UpstreamModel string
}

// Pipeline ties an upstream image client to content-addressed storage.
type Pipeline struct {
	client  upstream.ImageClient
	store   blob.Store
	baseURL string // public prefix for stored-image URLs, e.g. "/ui/images"
	kind    string // upstream protocol family, e.g. "mock", "http_a1111", "http_openai_images"
}

// New builds a Pipeline. kind names the upstream protocol family and is
// echoed back in the `_gateway.upstream` field.
func New(client upstream.ImageClient, store blob.Store, publicBaseURL string, kind string) *Pipeline {
	if publicBaseURL == "" {
		publicBaseURL = "/ui/images"
	}
	return &Pipeline{client: client, store: store, baseURL: strings.TrimRight(publicBaseURL, "/"), kind: kind}
}

// Store exposes the underlying blob store for serving persisted images
// back to clients (GET /ui/images/{filename}).
func (p *Pipeline) Store() blob.Store {
	return p.store
}

// Generate runs one images-generation call end to end: it enforces the
// response_format default and allowance, calls the upstream client, and
// for url responses persists bytes content-addressed.
func (p *Pipeline) Generate(ctx context.Context, decision Decision, policy registry.PayloadPolicy, req models.ImageRequest) (models.ImageResponse, error) {
	format := strings.ToLower(strings.TrimSpace(req.ResponseFormat))
	if format == "" {
		format = "url"
	}
	if format == "b64_json" && !policy.ImagesAllowBase64 {
		return models.ImageResponse{}, gatewayerr.New(gatewayerr.InvalidArguments,
			"this backend does not permit base64 image responses")
	}
	if format != "url" && format != "b64_json" {
		return models.ImageResponse{}, gatewayerr.Newf(gatewayerr.InvalidArguments, "response_format must be url or b64_json, got %q", format)
	}

	b64Images, err := p.client.Generate(ctx, req)
	if err != nil {
		return models.ImageResponse{}, translateImageErr(err)
	}

	data := make([]models.ImageData, 0, len(b64Images))
	now := time.Now()
	var gatewayInfo *models.ImageGatewayInfo
	requestEcho := &models.ImageGatewayRequest{
		Prompt: req.Prompt, Size: req.Size, N: req.N, ResponseFormat: format,
	}

	for i, b64 := range b64Images {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return models.ImageResponse{}, gatewayerr.New(gatewayerr.UpstreamProtocolError, "upstream returned malformed base64 image data").Wrap(err)
		}
		mime := detectMIME(raw)
		sum := sha256.Sum256(raw)
		hexSum := hex.EncodeToString(sum[:])

		if i == 0 {
			gatewayInfo = &models.ImageGatewayInfo{
				Backend:       decision.BackendName,
				BackendClass:  decision.BackendClass,
				Model:         decision.UpstreamModel,
				UIImageSHA256: hexSum,
				UIImageMIME:   mime,
				Request:       requestEcho,
				Upstream:      p.kind,
			}
		}

		if format == "b64_json" {
			data = append(data, models.ImageData{B64JSON: b64})
			continue
		}

		filename := fmt.Sprintf("%d_%s.%s", now.Unix(), hexSum[:12], extensionFor(mime))
		if _, err := p.store.Put(ctx, filename, rawReader(raw), blob.PutOptions{ContentType: mime}); err != nil {
			return models.ImageResponse{}, gatewayerr.New(gatewayerr.UpstreamHTTPError, "failed to persist generated image").Wrap(err)
		}

		data = append(data, models.ImageData{URL: p.baseURL + "/" + filename})
	}

	return models.ImageResponse{Created: now, Data: data, Gateway: gatewayInfo}, nil
}

// translateImageErr propagates an upstream 4xx status where the backend
// client reported one; anything else, including a 5xx, maps to a generic
// 502 with the upstream message enclosed.
func translateImageErr(err error) *gatewayerr.Error {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500 {
		return gatewayerr.New(gatewayerr.UpstreamHTTPError, statusErr.Error()).WithStatus(statusErr.Status).Wrap(err)
	}
	return gatewayerr.New(gatewayerr.UpstreamHTTPError, err.Error()).Wrap(err)
}

// detectMIME wraps http.DetectContentType with an SVG signature check,
// since the stdlib sniffer does not recognize SVG's XML-based signature.
func detectMIME(raw []byte) string {
	head := raw
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(head, []byte("<svg")) {
		return "image/svg+xml"
	}
	return http.DetectContentType(raw)
}

func rawReader(raw []byte) io.Reader {
	return bytes.NewReader(raw)
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	default:
		return "bin"
	}
}

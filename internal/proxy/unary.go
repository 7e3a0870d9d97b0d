package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/nulpointcorp/inference-gateway/pkg/apierr"
	"github.com/valyala/fasthttp"
)

// doUnary is C6: forward a single request/response pair to backendURL,
// bounded by lifetimeCtx's deadline. The upstream status code and body are
// copied back to the client unchanged.
func (o *Orchestrator) doUnary(lifetimeCtx context.Context, ctx *fasthttp.RequestCtx, rt route, backendURL string) {
	req, err := http.NewRequestWithContext(lifetimeCtx, http.MethodPost,
		backendURL+rt.upstreamPath, bytes.NewReader(ctx.PostBody()))
	if err != nil {
		apierr.WriteUpstreamError(ctx, "failed to build upstream request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.backendAPIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(lifetimeCtx.Err(), context.DeadlineExceeded) {
			apierr.WriteLifetimeExceeded(ctx)
			return
		}
		o.log.ErrorContext(ctx, "upstream_error", slog.String("backend", backendURL), slog.String("error", err.Error()))
		apierr.WriteUpstreamError(ctx, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(lifetimeCtx.Err(), context.DeadlineExceeded) {
			apierr.WriteLifetimeExceeded(ctx)
			return
		}
		apierr.WriteUpstreamError(ctx, "upstream response read failed")
		return
	}

	ctx.SetStatusCode(resp.StatusCode)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	ctx.SetContentType(contentType)
	ctx.SetBody(body)
}

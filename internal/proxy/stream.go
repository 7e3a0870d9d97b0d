package proxy

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nulpointcorp/inference-gateway/pkg/apierr"
	"github.com/valyala/fasthttp"
)

// streamChunk carries one raw read from the upstream body, or the terminal
// error (including io.EOF) that ended the read loop.
type streamChunk struct {
	data []byte
	err  error
}

// doStream is C7: proxy a server-sent-event response, enforcing independent
// lifetime and idle caps without reframing or buffering upstream chunks.
// cancel and finish are invoked exactly once: synchronously inside doStream
// when the upstream request cannot be built, fails, or answers with a
// non-200 status (after the error response is written), and otherwise from
// the stream-writer goroutine once the stream ends for any reason — normal
// EOF, lifetime expiry, idle expiry, upstream error, or client disconnect.
func (o *Orchestrator) doStream(lifetimeCtx context.Context, cancel context.CancelFunc, ctx *fasthttp.RequestCtx, rt route, backendURL string, finish func()) {
	req, err := http.NewRequestWithContext(lifetimeCtx, http.MethodPost,
		backendURL+rt.upstreamPath, bytes.NewReader(ctx.PostBody()))
	if err != nil {
		cancel()
		apierr.WriteUpstreamError(ctx, "failed to build upstream request")
		finish()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.backendAPIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		cancel()
		if lifetimeCtx.Err() == context.DeadlineExceeded {
			apierr.WriteLifetimeExceeded(ctx)
		} else {
			apierr.WriteUpstreamError(ctx, "upstream request failed")
		}
		finish()
		return
	}

	if resp.StatusCode != fasthttp.StatusOK {
		// Backend rejected the request before emitting any event — pass the
		// status and body through like a unary error response.
		body := readAllBestEffort(resp.Body)
		resp.Body.Close()
		cancel()
		ctx.SetStatusCode(resp.StatusCode)
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
		finish()
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")

	start := time.Now()
	chunks := make(chan streamChunk)
	go readChunks(resp.Body, chunks)

	ctx.SetBodyStreamWriter(o.streamWriter(resp, chunks, lifetimeCtx, cancel, ctx, start, finish))
}

// streamWriter builds the fasthttp body-stream callback: it relays raw
// chunks from chunks to w until EOF, an idle or lifetime cap fires, or the
// client disconnects, then runs the cleanup exactly once. Split out from
// doStream so the relay loop can be driven directly in tests without going
// through fasthttp's internal body-stream machinery.
func (o *Orchestrator) streamWriter(resp *http.Response, chunks <-chan streamChunk, lifetimeCtx context.Context, cancel context.CancelFunc, ctx *fasthttp.RequestCtx, start time.Time, finish func()) func(w *bufio.Writer) {
	return func(w *bufio.Writer) {
		defer func() {
			resp.Body.Close()
			cancel()
			// Drain whatever the reader still sends so it is never left
			// blocked on the channel after this loop has stopped receiving.
			go func() {
				for range chunks {
				}
			}()
			finish()
			if r := recover(); r != nil {
				o.log.ErrorContext(ctx, "stream_panic", slog.Any("panic", r))
			}
		}()

		idle := time.NewTimer(o.streamIdleTimeout)
		defer idle.Stop()

		for {
			select {
			case c, ok := <-chunks:
				if !ok {
					return
				}
				if c.err != nil {
					return
				}
				if len(c.data) > 0 {
					if _, werr := w.Write(c.data); werr != nil {
						return // client disconnected
					}
					if werr := w.Flush(); werr != nil {
						return
					}
				}
				if time.Since(start) > o.maxLifetime {
					return
				}
				idle.Reset(o.streamIdleTimeout)

			case <-idle.C:
				return

			case <-lifetimeCtx.Done():
				return
			}
		}
	}
}

// readChunks copies raw reads from body onto ch until EOF or error, then
// closes ch. It exits promptly once body is closed by the writer goroutine
// (a Read on a closed body returns an error).
func readChunks(body readCloser, ch chan<- streamChunk) {
	defer close(ch)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			ch <- streamChunk{data: data}
		}
		if err != nil {
			return
		}
	}
}

// readCloser is the subset of io.ReadCloser readChunks needs; declared
// locally so tests can supply a bare io.Reader-backed fake without pulling
// in the full http.Response machinery.
type readCloser interface {
	Read(p []byte) (n int, err error)
}

func readAllBestEffort(r readCloser) []byte {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			return out
		}
	}
}

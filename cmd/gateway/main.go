// Command gateway is the inference admission gateway.
//
// It reads configuration from environment variables (or config.yaml) and
// fronts the four backend pools (chat, text2sql, embed, rerank) behind
// per-client rate limiting, an admission queue, and round-robin load
// balancing.
//
// Quick-start:
//
//	GATEWAY_API_KEY=... BACKEND_API_KEY=... CHAT_BACKENDS=http://localhost:9000 \
//	TEXT2SQL_BACKEND=http://localhost:9000 EMBED_BACKEND=http://localhost:9001 \
//	RERANK_BACKEND=http://localhost:9002 ./gateway
//
// See .env.example for all available configuration variables.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nulpointcorp/inference-gateway/internal/app"
	"github.com/nulpointcorp/inference-gateway/internal/config"
	"github.com/nulpointcorp/inference-gateway/internal/proxy"
)

// Exit codes, per the gateway's external interface contract: 1 is a generic
// fatal error, 2 is reserved specifically for a failure to bind the listen
// address so process supervisors can distinguish "port taken" from any
// other startup or runtime failure.
const (
	exitGeneric  = 1
	exitBindFail = 2
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration — exits with a descriptive error if required vars are missing.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Build the structured logger. All subsystems share this instance.
	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Initialise and run the application.
	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(exitGeneric)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("gateway stopped", slog.String("error", err.Error()))
		var bindErr *proxy.ErrBind
		if errors.As(err, &bindErr) {
			os.Exit(exitBindFail)
		}
		os.Exit(exitGeneric)
	}
}

// buildLogger constructs a JSON slog.Logger for the given level string.
// Unknown level strings default to INFO.
func buildLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug, // include file:line only in debug mode
	}))
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/movie-search-assistant/internal/adapters/mcp"
	"github.com/kirillkom/movie-search-assistant/internal/bootstrap"
	"github.com/kirillkom/movie-search-assistant/internal/config"
	"github.com/kirillkom/movie-search-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol, so logs go to stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.Service, app.Sessions)
	if err := server.ServeStdio(ctx); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

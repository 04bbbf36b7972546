package main

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/cvgram/internal/adapters/mcp"
	"github.com/kirillkom/cvgram/internal/client"
	"github.com/kirillkom/cvgram/internal/config"
	"github.com/kirillkom/cvgram/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol
	logger := logging.NewJSONLoggerTo(os.Stderr, "cvgram-mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	api := client.New(cfg.ClientAPIURL, cfg.ClientToken)
	email, err := api.TokenEmail()
	if err != nil {
		logger.Warn("mcp_token_email_unavailable", "error", err)
	}

	s := mcpadapter.NewServer(mcpadapter.NewTools(api, email), version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}

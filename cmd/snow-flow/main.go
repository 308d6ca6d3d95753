package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/groeimetai/snow-flow/internal/audit"
	"github.com/groeimetai/snow-flow/internal/config"
	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/server"
	"github.com/groeimetai/snow-flow/internal/snowclient"
	"github.com/groeimetai/snow-flow/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Stdout carries the MCP protocol, so all logging goes to stderr.
	logger, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	provider := snowclient.NewProvider(cfg.Credentials(), logger)

	reg := registry.New()
	if err := tools.New(provider, logger).RegisterAll(reg); err != nil {
		logger.Fatal("tool registration failed", zap.Error(err))
	}

	auditW := audit.Writer(audit.NewNop())
	if cfg.AuditDB != "" {
		w, err := audit.NewSQLite(cfg.AuditDB, logger)
		if err != nil {
			logger.Fatal("audit database open failed", zap.String("path", cfg.AuditDB), zap.Error(err))
		}
		auditW = w
	}
	defer auditW.Close()

	srv := server.New(ctx, os.Stdin, os.Stdout, server.Options{
		Registry:        reg,
		CallerRole:      cfg.CallerRole(),
		DefaultInstance: cfg.DefaultInstance,
		CallTimeout:     cfg.CallTimeout(),
		Audit:           auditW,
		Logger:          logger,
	})
	if err := srv.Run(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("SNOW_LOG_LEVEL") == "debug" {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

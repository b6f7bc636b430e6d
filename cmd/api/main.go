package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cash-point/cashpoint/internal/config"
	"github.com/cash-point/cashpoint/internal/infra"
	"github.com/cash-point/cashpoint/internal/logging"
	"github.com/cash-point/cashpoint/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx := context.Background()

	res, err := infra.Open(ctx, cfg)
	if err != nil {
		logger.Error("connect infrastructure", "error", err)
		os.Exit(1)
	}
	defer res.Close(logger)

	srv, err := server.New(ctx, cfg, res, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		res.Close(logger)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			res.Close(logger)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		cancel()
		res.Close(logger)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

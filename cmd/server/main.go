package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/kollab-chat/internal/server"
)

func main() {
	cfg, err := server.LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := server.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting chat server", "addr", cfg.HTTPAddr, "origins", cfg.AllowedOrigins)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("build server", "err", err)
		os.Exit(1)
	}
	srv.StartHub()

	httpServer := server.CreateServer(cfg.HTTPAddr, srv.SetupRoutes())
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, logger)
			},
			"hub": func(context.Context) error {
				return srv.Hub().Shutdown(cfg.ShutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	logger.Info("chat server exited", "code", exitCode)
	os.Exit(exitCode)
}

package server_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/kollab-chat/internal/server"
)

const waitTimeout = 2 * time.Second

// startServer runs a full server behind httptest and tears it down with t.
func startServer(t *testing.T, mutate func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := *server.NewConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := server.New(cfg, logger)
	require.NoError(t, err)
	srv.StartHub()

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(waitTimeout)
	})
	return srv, ts
}

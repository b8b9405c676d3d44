// Package server assembles the room core, dispatcher and hub into a Server
// that the HTTP layer and cmd/server drive.
package server

import (
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

// Server owns every long-lived component of one chat process. Nothing is kept
// in package-level state, so tests can run several servers side by side.
type Server struct {
	cfg        Config
	log        *slog.Logger
	registry   *rooms.Registry
	store      *rooms.Store
	admission  *rooms.Admission
	router     *Router
	dispatcher *Dispatcher
	hub        *Hub
	metrics    *Metrics
	origins    *originPolicy
	upgrader   websocket.Upgrader
}

// New builds a Server from cfg. Zero config values fall back to defaults.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	cfg = SanitizeConfig(cfg)
	if logger == nil {
		logger = slog.Default()
	}

	codes, err := rooms.NewAllocator(cfg.InviteCodeLength)
	if err != nil {
		return nil, fmt.Errorf("invite code allocator: %w", err)
	}
	registry := rooms.NewRegistry()
	store := rooms.NewStore(registry, codes)
	admission, err := rooms.NewAdmission(store, registry)
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}

	metrics := NewMetrics(store, registry)
	router := NewRouter(store, registry, metrics, logger)
	dispatcher := NewDispatcher(registry, store, admission, router, metrics, logger)
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	s := &Server{
		cfg:        cfg,
		log:        logger,
		registry:   registry,
		store:      store,
		admission:  admission,
		router:     router,
		dispatcher: dispatcher,
		hub:        NewHub(dispatcher, store, cfg.PendingRoomTTL, logger),
		metrics:    metrics,
		origins:    origins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}
	return s, nil
}

// Config returns the sanitized configuration the server was built with.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Store returns the room store.
func (s *Server) Store() *rooms.Store {
	return s.store
}

// Dispatcher returns the event dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// StartHub starts the hub loop in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("hub started and ready to manage websocket connections")
}

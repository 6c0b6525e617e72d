package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aerosense-io/aerosense-core/internal/auth"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
)

// Subscribe failure reasons sent to clients.
var (
	errUnauthorized = errors.New("unauthorized")
	errNotLinked    = errors.New("not linked to device")
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Publisher re-publishes client commands to the broker. The telemetry
// bridge satisfies it.
type Publisher interface {
	PublishCommand(deviceID string, payload []byte) error
}

// AccessChecker is the registry's ACL surface.
type AccessChecker interface {
	HasLink(ctx context.Context, deviceID string, account string) (bool, error)
}

// Server is the interactive client relay: a WebSocket endpoint through
// which clients observe one device and publish commands to it without
// holding broker credentials of their own.
type Server struct {
	cfg       config.RelayConfig
	hub       *Hub
	publisher Publisher
	verifier  auth.Verifier
	access    AccessChecker
	logger    *logging.Logger
	http      *http.Server
}

// upgrader configures the WebSocket upgrader. Clients connect from the
// local network, not browsers, so origin checking stays permissive.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewServer creates the relay server. verifier and access may be nil
// when cfg.RequireAuth is false.
func NewServer(cfg config.RelayConfig, hub *Hub, publisher Publisher, verifier auth.Verifier, access AccessChecker, logger *logging.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		hub:       hub,
		publisher: publisher,
		verifier:  verifier,
		access:    access,
		logger:    logger.With("component", "relay"),
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get(s.cfg.WebSocket.Path, s.handleWebSocket)

	return r
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", "addr", s.http.Addr, "path", s.cfg.WebSocket.Path)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok")) //nolint:errcheck // Best-effort health body
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:     uuid.New().String(),
		server: s,
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	s.hub.Register(client)
	s.logger.Debug("relay client connected", "client_id", client.id, "remote", r.RemoteAddr)

	go client.writePump(s.cfg.WebSocket)
	go client.readPump(s.cfg.WebSocket)
}

// Package control is the local RPC surface the Agent reports through.
// It binds a loopback port, exposes the six /rpc operations plus the
// /watch event stream, and applies every report inside one store
// transaction so preconditions and mutations cannot race the engine.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/db"
	"github.com/randalmurphal/tc/internal/events"
)

// Config holds server dependencies.
type Config struct {
	Store      *db.Store
	Bus        *events.Bus
	Relay      *events.Relay // optional; nudged after each write
	ProjectID  string
	ProjectDir string
	Settings   *config.Config
	Logger     *slog.Logger
}

// Server is the control-plane HTTP server. It listens on an ephemeral
// loopback port; the engine writes the bound endpoint into .mcp.json so
// Agent sessions can find it.
type Server struct {
	store      *db.Store
	bus        *events.Bus
	relay      *events.Relay
	projectID  string
	projectDir string
	settings   *config.Config
	logger     *slog.Logger
	mux        *http.ServeMux
	ws         *WSHandler
	listener   net.Listener
}

// New creates a control server. Listen must be called before Serve.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}

	s := &Server{
		store:      cfg.Store,
		bus:        cfg.Bus,
		relay:      cfg.Relay,
		projectID:  cfg.ProjectID,
		projectDir: cfg.ProjectDir,
		settings:   settings,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.ws = NewWSHandler(cfg.Bus, logger)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /rpc/report_progress", s.handleReportProgress)
	s.mux.HandleFunc("POST /rpc/report_completion", s.handleReportCompletion)
	s.mux.HandleFunc("POST /rpc/report_failure", s.handleReportFailure)
	s.mux.HandleFunc("POST /rpc/report_review", s.handleReportReview)
	s.mux.HandleFunc("POST /rpc/get_context", s.handleGetContext)
	s.mux.HandleFunc("POST /rpc/request_human_input", s.handleRequestHumanInput)
	s.mux.Handle("GET /watch", s.ws)
}

// Listen binds an ephemeral loopback port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bind control port: %w", err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, e.g. "127.0.0.1:43891". Valid only
// after Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Endpoint returns the base URL Agent sessions should report to.
func (s *Server) Endpoint() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Serve runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	server := &http.Server{Handler: s.mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("control plane listening", "endpoint", s.Endpoint())
	err := server.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close releases the listener. Serve's shutdown already closes it; this
// covers the paths where Serve never ran.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// notify nudges the log relay so a report's events reach bus
// subscribers without waiting out the poll interval.
func (s *Server) notify() {
	if s.relay != nil {
		s.relay.Notify()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok", "project_id": s.projectID})
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"stratd/src/lifecycle"
	"stratd/src/metrics"
	"stratd/src/runtime"
	"stratd/src/statistics"
	"stratd/src/utils/errors"
)

// Server is the daemon's control surface: lifecycle operations, status and
// stats reads, and the live metrics websocket.
type Server struct {
	addr          string
	upgrader      websocket.Upgrader
	httpMux       *http.ServeMux
	metricsWriter *metrics.WebsocketMetricsWriter
	manager       *lifecycle.Manager
	coordinator   *runtime.Coordinator
	bus           *statistics.Bus
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all connections (for development purposes)
			},
		},
		httpMux: http.NewServeMux(),
	}
}

func (s *Server) WithMetricsWriter(metricsWriter *metrics.WebsocketMetricsWriter) *Server {
	s.metricsWriter = metricsWriter
	return s
}

func (s *Server) WithLifecycleManager(manager *lifecycle.Manager) *Server {
	s.manager = manager
	return s
}

func (s *Server) WithCoordinator(coordinator *runtime.Coordinator) *Server {
	s.coordinator = coordinator
	return s
}

func (s *Server) WithStatsBus(bus *statistics.Bus) *Server {
	s.bus = bus
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.manager == nil {
		return errors.New("lifecycle manager is nil")
	}
	if s.coordinator == nil {
		return errors.New("coordinator is nil")
	}
	s.RegisterHealthCheck()
	s.RegisterControlHandlers()
	s.RegisterStatusHandlers()
	s.RegisterWebSocketHandler()
	s.RegisterSwagger()
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.httpMux,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("Failed to close server", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Starting server on %s", s.addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.metricsWriter == nil {
		http.Error(w, "metrics streaming is disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	s.metricsWriter.AddClient(conn)
	defer s.metricsWriter.RemoveClient(conn)

	slog.Info("Stats client connected", "remote", r.RemoteAddr)

	welcomeMessage := ApiResponse{
		Success: true,
		Data:    "Connected to the stratd stats stream",
	}
	if err := conn.WriteJSON(welcomeMessage); err != nil {
		slog.Error("Failed to send welcome message", "error", err)
		return
	}

	// the stream is one-way; reads only detect client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			slog.Info("Stats client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

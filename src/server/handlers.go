package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"stratd/src/lifecycle"
	"stratd/src/utils/errors"
)

// @title Stratd API
// @version 1.0
// @description Control surface for the stratd multi-strategy trading daemon
// @host localhost:8080
// @BasePath /

// ApiResponse is the envelope every endpoint answers with.
// @Description Standard response structure
type ApiResponse struct {
	// Whether the operation was successful
	// Required: true
	Success bool `json:"success" example:"true"`
	// Response payload data
	// Required: false
	Data any `json:"data,omitempty"`
	// Error message if operation failed
	// Required: false
	Error string `json:"error,omitempty" example:"unknown strategy"`
}

// RebalanceRequest carries new allocations for one or more strategies.
// @Description Rebalance request body
type RebalanceRequest struct {
	// New allocation per strategy id
	// Required: true
	Targets map[string]float64 `json:"targets"`
	// Spread the remaining fraction evenly over unlisted strategies
	// Required: false
	Redistribute bool `json:"redistribute"`
}

func writeJSON(w http.ResponseWriter, status int, response ApiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrUnknownStrategy):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrAllocationConflict):
		status = http.StatusConflict
	default:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, ApiResponse{Success: false, Error: err.Error()})
}

// RegisterHealthCheck registers the health check endpoint
// @Summary Health check endpoint
// @Description Returns health status of the stratd service
// @Tags health
// @Produce plain
// @Success 200 {string} string "stratd is healthy"
// @Router /health [get]
func (s *Server) RegisterHealthCheck() {
	s.httpMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("stratd is healthy"))
	})
}

// RegisterControlHandlers registers the lifecycle endpoints.
// @Summary Strategy lifecycle endpoints
// @Description Deploy, pause, resume, undeploy, and rebalance strategies
// @Tags lifecycle
func (s *Server) RegisterControlHandlers() {
	s.httpMux.HandleFunc("POST /deploy", s.handleDeploy)
	s.httpMux.HandleFunc("POST /pause/{id}", s.handlePause)
	s.httpMux.HandleFunc("POST /resume/{id}", s.handleResume)
	s.httpMux.HandleFunc("POST /undeploy/{id}", s.handleUndeploy)
	s.httpMux.HandleFunc("POST /rebalance", s.handleRebalance)
}

// RegisterStatusHandlers registers the read-only endpoints.
func (s *Server) RegisterStatusHandlers() {
	s.httpMux.HandleFunc("GET /status", s.handleStatus)
	s.httpMux.HandleFunc("GET /stats", s.handleStats)
}

// handleDeploy deploys a new strategy
// @Summary Deploy a strategy
// @Accept json
// @Produce json
// @Param request body lifecycle.DeployRequest true "Deploy request"
// @Success 200 {object} ApiResponse
// @Failure 409 {object} ApiResponse
// @Router /deploy [post]
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var request lifecycle.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, ApiResponse{Success: false, Error: "invalid deploy request: " + err.Error()})
		return
	}
	result, err := s.manager.Deploy(r.Context(), request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// handlePause pauses an active strategy
// @Summary Pause a strategy
// @Produce json
// @Param id path string true "Strategy id"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} ApiResponse
// @Router /pause/{id} [post]
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Pause(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// handleResume resumes a paused strategy
// @Summary Resume a strategy
// @Produce json
// @Param id path string true "Strategy id"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} ApiResponse
// @Router /resume/{id} [post]
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Resume(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// handleUndeploy permanently retires a strategy
// @Summary Undeploy a strategy
// @Produce json
// @Param id path string true "Strategy id"
// @Param liquidate query bool false "Close open positions first"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} ApiResponse
// @Router /undeploy/{id} [post]
func (s *Server) handleUndeploy(w http.ResponseWriter, r *http.Request) {
	liquidate := r.URL.Query().Get("liquidate") == "true"
	result, err := s.manager.Undeploy(r.Context(), r.PathValue("id"), liquidate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// handleRebalance atomically updates allocations
// @Summary Rebalance allocations
// @Accept json
// @Produce json
// @Param request body RebalanceRequest true "Rebalance request"
// @Success 200 {object} ApiResponse
// @Failure 409 {object} ApiResponse
// @Router /rebalance [post]
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var request RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, ApiResponse{Success: false, Error: "invalid rebalance request: " + err.Error()})
		return
	}
	if len(request.Targets) == 0 {
		writeJSON(w, http.StatusBadRequest, ApiResponse{Success: false, Error: "rebalance targets are empty"})
		return
	}
	if err := s.manager.Rebalance(request.Targets, request.Redistribute); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true})
}

// handleStatus returns the full portfolio and strategy status
// @Summary Status report
// @Produce json
// @Success 200 {object} ApiResponse
// @Router /status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.coordinator.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ApiResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report})
}

// handleStats returns tracker statistics
// @Summary Tracker statistics
// @Produce json
// @Param strategy_id query string false "Limit to one strategy"
// @Success 200 {object} ApiResponse
// @Router /stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, ApiResponse{Success: false, Error: "statistics are disabled"})
		return
	}
	if strategyId := r.URL.Query().Get("strategy_id"); strategyId != "" {
		writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.bus.StatsFor(strategyId)})
		return
	}
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.bus.Summary()})
}

// RegisterWebSocketHandler registers the stats stream endpoint
// @Summary WebSocket stats stream
// @Description Streams StatsSnapshot records to connected clients
// @Tags websocket
// @Success 101 {string} string "Switching protocols to websocket"
// @Router /ws [get]
func (s *Server) RegisterWebSocketHandler() {
	s.httpMux.HandleFunc("/ws", s.handleWebSocket)
}

// RegisterSwagger registers the Swagger documentation endpoint
// @Summary Swagger documentation endpoint
// @Description Serves Swagger API documentation UI and JSON spec
// @Tags docs
// @Produce json,html
// @Success 200 {string} string "Swagger documentation UI"
// @Router /swagger [get]
func (s *Server) RegisterSwagger() {
	s.httpMux.HandleFunc("/swagger", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/internal/ledger"
	"github.com/kirillm/tradeguard/pkg/utils"
)

// Engine операции движка только для чтения
type Engine interface {
	Sync(ctx context.Context, caller string) (*domain.PortfolioSnapshot, error)
	LastSnapshot() *domain.PortfolioSnapshot
	TradeSummary(caller string, limit int) (execution.TradeSummary, error)
	RealizedGains(caller string, year int) (ledger.RealizedSummary, error)
	UnrealizedGains(ctx context.Context, caller string) (map[string]ledger.UnrealizedGain, error)
	RecentAlerts(n int) []domain.Alert
	RateLimitStatus(caller, resource string) (int, time.Duration)
	KillSwitch() *execution.KillSwitch
	Mode() string
}

// Server HTTP API состояния движка. Торговых операций нет, они доступны только из Telegram.
type Server struct {
	logger  *utils.Logger
	engine  Engine
	port    int
	started time.Time
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewServer(engine Engine, port int, logger *utils.Logger) *Server {
	return &Server{
		logger:  logger,
		engine:  engine,
		port:    port,
		started: time.Now(),
	}
}

// Handler маршруты API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/portfolio", s.handlePortfolio)
	mux.HandleFunc("/gains", s.handleGains)
	mux.HandleFunc("/unrealized", s.handleUnrealized)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/ratelimit", s.handleRateLimit)

	return mux
}

// Start слушает порт до отмены ctx
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("Starting HTTP server on %s", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("HTTP server stopped")
		return nil
	}
}

// handleHealth - health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	active, reason, _ := s.engine.KillSwitch().Status()
	s.sendSuccess(w, map[string]interface{}{
		"status":             "healthy",
		"mode":               s.engine.Mode(),
		"kill_switch":        active,
		"kill_switch_reason": reason,
		"uptime_seconds":     int(time.Since(s.started).Seconds()),
		"timestamp":          time.Now().Unix(),
	})
}

// handleStatus - лимиты шлюза и последние сделки
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	summary, err := s.engine.TradeSummary(caller(r), getQueryParamInt(r, "limit", 10))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendSuccess(w, summary)
}

// handlePortfolio - последний снимок, refresh=true запускает синхронизацию
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	snapshot := s.engine.LastSnapshot()
	if snapshot == nil || getQueryParam(r, "refresh", "false") == "true" {
		var err error
		snapshot, err = s.engine.Sync(r.Context(), caller(r))
		if err != nil {
			s.sendEngineError(w, err)
			return
		}
	}
	s.sendSuccess(w, snapshot)
}

// handleGains - налоговая сводка, year=0 за все годы
func (s *Server) handleGains(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	year := getQueryParamInt(r, "year", 0)
	if year < 0 {
		s.sendError(w, "year must not be negative", http.StatusBadRequest)
		return
	}

	summary, err := s.engine.RealizedGains(caller(r), year)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendSuccess(w, summary)
}

func (s *Server) handleUnrealized(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	gains, err := s.engine.UnrealizedGains(r.Context(), caller(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendSuccess(w, gains)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	s.sendSuccess(w, s.engine.RecentAlerts(getQueryParamInt(r, "n", 20)))
}

// handleRateLimit - остаток вызовов ресурса для текущего клиента
func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	resource := getQueryParam(r, "resource", "")
	if resource == "" {
		s.sendError(w, "resource is required", http.StatusBadRequest)
		return
	}

	remaining, reset := s.engine.RateLimitStatus(caller(r), resource)
	s.sendSuccess(w, map[string]interface{}{
		"resource":      resource,
		"remaining":     remaining,
		"reset_seconds": int(reset.Seconds()),
	})
}

// caller идентификатор клиента для RateLimiter движка
func caller(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "http:" + host
}

func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) sendEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrProvider):
		status = http.StatusBadGateway
	}
	s.logger.Warn("API request failed: %v", err)
	s.sendError(w, err.Error(), status)
}

// Helper methods
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Response{
		Success: true,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
	})
}

// Helper function to parse query parameter
func getQueryParam(r *http.Request, key string, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse int query parameter
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Package api exposes the HTTP and WebSocket surface: signal queries,
// analytics, loss patterns, macro context and manual scan triggers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"marketvision/internal/adapters"
	"marketvision/internal/logging"
	"marketvision/internal/macro"
	"marketvision/internal/signal"
)

// ScanTrigger lets the API kick a symbol scan outside the periodic loop.
type ScanTrigger interface {
	ScanSymbol(ctx context.Context, symbol string) error
}

// HealthChecker reports storage connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        ServerConfig
	log        zerolog.Logger

	store    signal.Store
	registry *adapters.Registry
	trigger  ScanTrigger
	health   HealthChecker
	macro    *macro.Cache
	cot      *macro.COTClient
	hub      *WSHub
}

// NewServer wires the routes. Any dependency may be nil; its endpoints
// then answer 503.
func NewServer(cfg ServerConfig, store signal.Store, registry *adapters.Registry,
	trigger ScanTrigger, health HealthChecker, macroCache *macro.Cache, cot *macro.COTClient) *Server {

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:   router,
		cfg:      cfg,
		log:      logging.Component("api"),
		store:    store,
		registry: registry,
		trigger:  trigger,
		health:   health,
		macro:    macroCache,
		cot:      cot,
		hub:      NewWSHub(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/signals", s.handleListSignals)
		v1.GET("/signals/:id", s.handleGetSignal)
		v1.GET("/analytics/:symbol", s.handleAnalytics)
		v1.GET("/loss-patterns", s.handleLossPatterns)
		v1.GET("/adapters", s.handleAdapters)
		v1.GET("/ticker/:symbol", s.handleTicker)
		v1.GET("/orderbook/:symbol", s.handleOrderBook)
		v1.GET("/macro", s.handleMacro)
		v1.GET("/cot", s.handleCOT)
		v1.POST("/scan/:symbol", s.handleScan)
	}

	s.router.GET("/ws/signals", s.handleWebSocket)
}

// Hub exposes the WebSocket hub so the scheduler can broadcast signals.
func (s *Server) Hub() *WSHub { return s.hub }

// Start runs the hub and the HTTP listener. Blocks until the listener
// stops.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

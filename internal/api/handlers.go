package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketvision/internal/adapters"
	"marketvision/internal/market"
	"marketvision/internal/signal"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/signals?symbol=&status=&timeframe=
func (s *Server) handleListSignals(c *gin.Context) {
	filter := signal.Filter{
		Symbol:    c.Query("symbol"),
		Status:    signal.Status(c.Query("status")),
		Timeframe: market.Timeframe(c.Query("timeframe")),
	}
	signals, err := s.store.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) handleGetSignal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return
	}
	sig, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, signal.ErrSignalNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (s *Server) handleAnalytics(c *gin.Context) {
	symbol := c.Param("symbol")
	signals, err := s.store.List(c.Request.Context(), signal.Filter{Symbol: symbol})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, signal.ComputeAnalytics(symbol, signals))
}

// GET /api/v1/loss-patterns?symbol=
func (s *Server) handleLossPatterns(c *gin.Context) {
	signals, err := s.store.List(c.Request.Context(), signal.Filter{Symbol: c.Query("symbol")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	report := signal.AnalyzeLossPatterns(signals, 50)
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleAdapters(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "adapter registry unavailable"})
		return
	}
	type adapterInfo struct {
		Name       string `json:"name"`
		MarketType string `json:"market_type"`
	}
	var out []adapterInfo
	for _, a := range s.registry.All() {
		out = append(out, adapterInfo{Name: a.Name(), MarketType: string(a.MarketType())})
	}
	c.JSON(http.StatusOK, gin.H{"adapters": out})
}

func (s *Server) handleTicker(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "adapter registry unavailable"})
		return
	}
	symbol := market.CanonicalSymbol(c.Param("symbol"))
	adapter, err := s.registry.Route(symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	provider, ok := adapter.(adapters.TickerProvider)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "adapter has no ticker support"})
		return
	}
	ticker, err := provider.FetchTicker(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ticker)
}

func (s *Server) handleOrderBook(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "adapter registry unavailable"})
		return
	}
	symbol := market.CanonicalSymbol(c.Param("symbol"))
	depth, err := strconv.Atoi(c.DefaultQuery("depth", "20"))
	if err != nil || depth <= 0 || depth > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth"})
		return
	}
	adapter, err := s.registry.Route(symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	provider, ok := adapter.(adapters.OrderBookProvider)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "adapter has no depth support"})
		return
	}
	book, err := provider.FetchOrderBook(c.Request.Context(), symbol, depth)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) handleMacro(c *gin.Context) {
	if s.macro == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "macro cache unavailable"})
		return
	}
	summary, err := s.macro.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleCOT(c *gin.Context) {
	if s.cot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cot client unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.cot.GoldReport(c.Request.Context()))
}

// POST /api/v1/scan/:symbol triggers an out-of-cycle scan.
func (s *Server) handleScan(c *gin.Context) {
	if s.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler unavailable"})
		return
	}
	symbol := market.CanonicalSymbol(c.Param("symbol"))
	if err := s.trigger.ScanSymbol(c.Request.Context(), symbol); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"symbol": symbol, "status": "scanned"})
}

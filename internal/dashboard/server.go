// Package dashboard hosts the Gin-powered web view over the mirrored
// analyzer state. Reads are served straight from the store; mutations are
// proxied to the backend first and applied locally only when the backend
// accepted them.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"volumewatch/config"
	"volumewatch/internal/metrics"
	"volumewatch/internal/state"
	"volumewatch/logger"
	"volumewatch/models"
)

//go:embed templates/*.tmpl
var embeddedFS embed.FS

// Backend is the slice of the REST client the dashboard mutations need.
type Backend interface {
	AddWatchlistItem(ctx context.Context, symbol string) error
	UpdateWatchlistItem(ctx context.Context, item models.WatchlistItem) error
	DeleteWatchlistItem(ctx context.Context, id int64) error
	Watchlist(ctx context.Context) ([]models.WatchlistItem, error)
	AlertDetails(ctx context.Context, groupID int64) ([]models.Alert, error)
	DeleteAlertGroup(ctx context.Context, groupID int64) error
	ClearAlerts(ctx context.Context) error
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// Server hosts the dashboard for one running client.
type Server struct {
	cfg               config.DashboardConfig
	appName           string
	store             *state.Store
	backend           Backend
	log               *logger.Log
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When it is disabled the returned server is nil.
func NewServer(cfg config.DashboardConfig, appName string, store *state.Store, backend Backend, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.ResourceHistory <= 0 {
		cfg.ResourceHistory = 200
	}

	server := &Server{
		cfg:               cfg,
		appName:           appName,
		store:             store,
		backend:           backend,
		log:               log,
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		resourceSampler:   newResourceSampler(cfg.ResourceHistory, cfg.RefreshInterval, "/", log),
	}

	return server, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context
// is cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)
	defer s.resourceSampler.stop()

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           s.appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	view := router.Group("/view")
	{
		view.GET("/ticks", s.handleTicks)
		view.GET("/status", s.handleStatus)
		view.GET("/stats", s.handleStats)
		view.GET("/resources", s.handleResources)

		view.GET("/alerts", s.handleAlerts)
		view.GET("/alerts/:id/details", s.handleAlertDetails)
		view.POST("/alerts/:id/expand", s.handleExpandAlert)
		view.DELETE("/alerts/:id", s.handleDeleteAlertGroup)
		view.DELETE("/alerts", s.handleClearAlerts)

		view.GET("/watchlist", s.handleWatchlist)
		view.POST("/watchlist", s.handleAddWatchlistItem)
		view.POST("/watchlist/:id/edit", s.handleBeginEdit)
		view.POST("/watchlist/edit/cancel", s.handleCancelEdit)
		view.PUT("/watchlist/:id", s.handleUpdateWatchlistItem)
		view.DELETE("/watchlist/:id", s.handleDeleteWatchlistItem)

		view.GET("/settings", s.handleSettings)
		view.POST("/settings", s.handleSaveSettings)
	}

	return router, nil
}

func (s *Server) handleTicks(c *gin.Context) {
	ticks := s.store.Ticks()
	payload := make([]gin.H, 0, len(ticks))
	for _, tick := range ticks {
		entry := gin.H{
			"symbol":    tick.Symbol,
			"open":      tick.Data.Open,
			"high":      tick.Data.High,
			"low":       tick.Data.Low,
			"close":     tick.Data.Close,
			"volume":    tick.Data.Volume,
			"is_long":   tick.Data.IsLong(),
			"timestamp": tick.Timestamp.Format(time.RFC3339Nano),
		}
		if quote, err := tick.Data.QuoteVolume(); err == nil {
			entry["quote_volume"] = quote.String()
		}
		payload = append(payload, entry)
	}
	c.JSON(http.StatusOK, gin.H{"ticks": payload})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected":   s.store.Connected(),
		"pairs_count": s.store.PairsCount(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Stats())
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}

func (s *Server) handleAlerts(c *gin.Context) {
	groups := s.store.Groups()
	payload := make([]gin.H, 0, len(groups))
	for _, group := range groups {
		payload = append(payload, gin.H{
			"id":               group.ID,
			"symbol":           group.Symbol,
			"alert_type":       group.AlertType,
			"first_alert_time": group.FirstAlertTime,
			"last_alert_time":  group.LastAlertTime,
			"alert_count":      group.AlertCount,
			"max_volume_ratio": group.MaxVolumeRatio,
			"max_price":        group.MaxPrice,
			"max_volume_usdt":  group.MaxVolumeUSDT,
			"is_active":        group.IsActive,
			"expanded":         s.store.IsExpanded(group.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"alert_groups": payload})
}

func (s *Server) handleAlertDetails(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	alerts, cached := s.store.GroupDetails(id)
	if !cached {
		c.JSON(http.StatusNotFound, gin.H{"error": "details not loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// handleExpandAlert toggles a group open or closed. The detail list is
// fetched from the backend only on the first expansion; later expansions are
// served from the cache.
func (s *Server) handleExpandAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	expanded, needsFetch := s.store.ToggleExpanded(id)
	if needsFetch {
		alerts, err := s.backend.AlertDetails(c.Request.Context(), id)
		if err != nil {
			s.log.WithComponent("dashboard").WithError(err).Warn("failed to fetch alert details")
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load alert details"})
			return
		}
		s.store.SetGroupDetails(id, alerts)
	}

	c.JSON(http.StatusOK, gin.H{"expanded": expanded})
}

func (s *Server) handleDeleteAlertGroup(c *gin.Context) {
	if !confirmed(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.backend.DeleteAlertGroup(c.Request.Context(), id); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to delete alert group")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to delete alert group"})
		return
	}
	s.store.RemoveGroup(id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleClearAlerts(c *gin.Context) {
	if !confirmed(c) {
		return
	}
	if err := s.backend.ClearAlerts(c.Request.Context()); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to clear alerts")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to clear alerts"})
		return
	}
	s.store.ClearGroups()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) handleWatchlist(c *gin.Context) {
	payload := gin.H{"pairs": s.store.Watchlist()}
	if editing, ok := s.store.Editing(); ok {
		payload["editing"] = editing
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleAddWatchlistItem(c *gin.Context) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Symbol) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(body.Symbol))

	if err := s.backend.AddWatchlistItem(c.Request.Context(), symbol); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to add watchlist item")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to add watchlist item"})
		return
	}
	s.refetchWatchlist(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

func (s *Server) handleBeginEdit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if !s.store.BeginEdit(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "watchlist item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "editing"})
}

func (s *Server) handleCancelEdit(c *gin.Context) {
	s.store.ClearEdit()
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleUpdateWatchlistItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var item models.WatchlistItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid watchlist item"})
		return
	}
	item.ID = id

	if err := s.backend.UpdateWatchlistItem(c.Request.Context(), item); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to update watchlist item")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to update watchlist item"})
		return
	}
	s.store.ClearEdit()
	s.refetchWatchlist(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleDeleteWatchlistItem(c *gin.Context) {
	if !confirmed(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.backend.DeleteWatchlistItem(c.Request.Context(), id); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to delete watchlist item")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to delete watchlist item"})
		return
	}
	s.refetchWatchlist(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleSettings(c *gin.Context) {
	settings, ok := s.store.Settings()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "settings not loaded yet"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var settings models.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}
	if err := s.backend.SaveSettings(c.Request.Context(), settings); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to save settings")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to save settings"})
		return
	}
	s.store.SetSettings(settings)
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (s *Server) refetchWatchlist(ctx context.Context) {
	items, err := s.backend.Watchlist(ctx)
	if err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to refresh watchlist after mutation")
		return
	}
	s.store.ReplaceWatchlist(items)
}

// confirmed enforces the confirm=true query flag on destructive routes.
func confirmed(c *gin.Context) bool {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation required"})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}

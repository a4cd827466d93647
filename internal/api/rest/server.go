package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/analyzer"
	"github.com/KevinKickass/OpenAssetCore/internal/api/websocket"
	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/config"
	"github.com/KevinKickass/OpenAssetCore/internal/interfaces"
	"github.com/KevinKickass/OpenAssetCore/internal/types"
	"github.com/KevinKickass/OpenAssetCore/internal/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router        *gin.Engine
	coordinator   *workflow.Coordinator
	analyzer      *analyzer.Service
	authenticator *auth.Authenticator
	wsHub         *websocket.Hub
	status        interfaces.StatusProvider
	validator     *Validator
	logger        *zap.Logger
	server        *http.Server
}

// NewServer wires the HTTP surface. wsHub may be nil when websockets are disabled.
func NewServer(cfg *config.Config, coordinator *workflow.Coordinator, analyzer *analyzer.Service,
	authenticator *auth.Authenticator, wsHub *websocket.Hub, logger *zap.Logger) (*Server, error) {
	if cfg.Server.Development() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:        router,
		coordinator:   coordinator,
		analyzer:      analyzer,
		authenticator: authenticator,
		wsHub:         wsHub,
		validator:     validator,
		logger:        logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// SetStatusProvider enables GET /api/v1/system/status.
func (s *Server) SetStatusProvider(p interfaces.StatusProvider) {
	s.status = p
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")

	// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
	if s.wsHub != nil {
		v1.GET("/ws/notifications", s.wsNotifications)
	}

	api := v1.Group("")
	api.Use(s.authenticator.AuthMiddleware())

	admin := auth.RequireRole(asset.RoleAdmin)
	technician := auth.RequireRole(asset.RoleTechnician)

	// ==================== INCIDENTS ====================
	incidents := api.Group("/incidents")
	{
		incidents.POST("", s.createIncident)
		incidents.GET("", s.listIncidents)
		incidents.GET("/:id", s.getIncident)
		incidents.POST("/:id/approve", admin, s.approveIncident)
		incidents.POST("/:id/reject", admin, s.rejectIncident)
	}

	// ==================== REPAIRS ====================
	repairs := api.Group("/repairs")
	{
		repairs.GET("", s.listRepairs)
		repairs.GET("/:id", s.getRepair)
		repairs.POST("/:id/assign", admin, s.assignRepair)
		repairs.POST("/:id/confirm", admin, s.confirmRepair)

		repairs.POST("/:id/accept", technician, s.acceptRepair)
		repairs.POST("/:id/complete", technician, s.completeRepair)
		repairs.POST("/:id/reject", technician, s.rejectRepair)
		repairs.POST("/:id/not-needed", technician, s.repairNotNeeded)
		repairs.POST("/:id/decline", technician, s.declineRepair)
	}

	// ==================== REPLACEMENTS (ADMIN ONLY) ====================
	replacements := api.Group("/replacements")
	replacements.Use(admin)
	{
		replacements.POST("", s.createReplacement)
		replacements.GET("/candidates/:deviceId", s.replacementCandidates)
	}

	// ==================== LIQUIDATIONS (ADMIN ONLY) ====================
	liquidations := api.Group("/liquidations")
	liquidations.Use(admin)
	{
		liquidations.POST("", s.liquidate)
		liquidations.POST("/batch", s.liquidateBatch)
		liquidations.GET("/eligible", s.listEligible)
	}

	// ==================== DEVICES ====================
	devices := api.Group("/devices")
	{
		devices.GET("/:id", s.getDevice)
		devices.GET("/:id/history", s.deviceHistory)
		devices.GET("/:id/analysis", s.deviceAnalysis)
		devices.GET("/:id/liquidation-eligibility", s.liquidationEligibility)
	}

	// ==================== SYSTEM (ADMIN ONLY) ====================
	api.GET("/system/status", admin, s.systemStatus)
	if s.wsHub != nil {
		api.GET("/ws/status", admin, s.wsStatus)
	}
}

func (s *Server) systemStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("SYSTEM_503", "status provider not available", nil))
		return
	}
	c.JSON(http.StatusOK, s.status.GetCurrentStatus())
}

// WebSocket handlers
func (s *Server) wsNotifications(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.ConnectedClients(),
		"connected_users":   s.wsHub.ConnectedUsers(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

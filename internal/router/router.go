package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/neetly/session-backend/internal/auth"
	"github.com/neetly/session-backend/internal/config"
	"github.com/neetly/session-backend/internal/handler"
	"github.com/neetly/session-backend/internal/middleware"
	"github.com/neetly/session-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(tokens *auth.Service, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for session creation (10 new attempts per minute per IP).
	createLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Session Creation (Public, Rate Limited) ────────────────────
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", createLimiter.Middleware(), handlers.Session.Create)
	}

	// ─── 2. Session Group (Session Token) ──────────────────────────────
	sessions := router.Group("/api/v1/sessions/:id")
	sessions.Use(middleware.RequireSessionToken(tokens))
	{
		sessions.GET("", handlers.Session.Get)
		sessions.POST("/goto", handlers.Session.GoTo)
		sessions.POST("/next", handlers.Session.Next)
		sessions.POST("/previous", handlers.Session.Previous)
		sessions.POST("/answer", handlers.Session.Answer)
		sessions.POST("/flag", handlers.Session.Flag)
		sessions.POST("/bookmark", handlers.Session.Bookmark)
		sessions.POST("/violation", handlers.Session.Violation)
		sessions.POST("/submit", handlers.Session.Submit)
		sessions.GET("/report-reasons", handlers.Session.ReportReasons)
		sessions.POST("/report", handlers.Session.Report)
		sessions.DELETE("", handlers.Session.Delete)
	}

	// ─── 3. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(tokens))
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}

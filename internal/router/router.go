package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prepwise/prepwise-backend/internal/config"
	"github.com/prepwise/prepwise-backend/internal/handler"
	"github.com/prepwise/prepwise-backend/internal/middleware"
	"github.com/prepwise/prepwise-backend/internal/response"
	"github.com/prepwise/prepwise-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Paper     *handler.PaperHandler
	Attempt   *handler.AttemptHandler
	MarkingWS *handler.MarkingWSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
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

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Auth group: public, rate limited.
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
	}

	// Papers are public so guests can browse and attempt locally.
	papers := router.Group("/api/v1/papers")
	{
		papers.GET("", handlers.Paper.ListPapers)
		papers.GET("/:paper_id", handlers.Paper.GetPaper)
	}

	// Attempts require a signed-in user; guest attempts live on the client.
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireAuth(authService))
	{
		attempts.POST("", handlers.Attempt.Create)
		attempts.GET("", handlers.Attempt.List)
		attempts.GET("/active", handlers.Attempt.Active)
		attempts.GET("/:id", handlers.Attempt.Get)
		attempts.POST("/:id/answers", handlers.Attempt.SaveAnswer)
		attempts.GET("/:id/answers", handlers.Attempt.ListAnswers)
		attempts.POST("/:id/sync-answers", handlers.Attempt.SyncAnswers)
		attempts.POST("/:id/track", handlers.Attempt.Track)
		attempts.POST("/:id/submit", handlers.Attempt.Submit)
		attempts.GET("/:id/results", handlers.Attempt.Results)
		attempts.GET("/:id/marking", handlers.Attempt.MarkingProgress)
	}

	// WebSocket group: token also accepted via query param for browsers.
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAuth(authService))
	{
		ws.GET("/attempts/:id/marking", handlers.MarkingWS.Stream)
	}

	return router
}

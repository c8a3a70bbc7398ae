package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/itilprep/itil-exam-backend/internal/handler"
	"github.com/itilprep/itil-exam-backend/internal/middleware"
	"github.com/itilprep/itil-exam-backend/internal/response"
)

// catalogMaxAge is how long browsers may cache catalog reads.
const catalogMaxAge = 300

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Question      *handler.QuestionHandler
	Session       *handler.SessionHandler
	SessionEvents *handler.SessionEventsHandler
	Result        *handler.ResultHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable rate limiting.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	limit := func(c *gin.Context) { c.Next() }
	if limiter != nil {
		limit = limiter.Middleware()
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Brotli())

	// ─── 1. Question Catalog (public reads, authenticated writes) ──────
	catalog := api.Group("")
	{
		catalog.GET("/questions", middleware.CacheControl(catalogMaxAge), handlers.Question.ListQuestions)
		catalog.GET("/questions/:id", middleware.CacheControl(catalogMaxAge), handlers.Question.GetQuestion)
		catalog.GET("/categories", middleware.CacheControl(catalogMaxAge), handlers.Question.ListCategories)

		catalog.POST("/questions", middleware.RequireAuth(auth), limit, handlers.Question.AddQuestion)
		catalog.POST("/questions/bulk", middleware.RequireAuth(auth), limit, handlers.Question.BulkUpload)
	}

	// ─── 2. Exam Sessions (anonymous or bound to the caller) ───────────
	sessions := api.Group("/sessions")
	sessions.Use(middleware.OptionalAuth(auth), middleware.NoStore())
	{
		sessions.POST("", limit, handlers.Session.CreateSession)
		sessions.GET("/:id", handlers.Session.GetSession)
		sessions.DELETE("/:id", handlers.Session.AbandonSession)
		sessions.POST("/:id/start", handlers.Session.StartSession)
		sessions.PUT("/:id/answers/:index", handlers.Session.SelectAnswer)
		sessions.POST("/:id/flags/:index", handlers.Session.ToggleFlag)
		sessions.POST("/:id/important/:index", handlers.Session.ToggleImportant)
		sessions.PUT("/:id/cursor", handlers.Session.MoveCursor)
		sessions.POST("/:id/randomize", handlers.Session.Randomize)
		sessions.POST("/:id/submit", handlers.Session.SubmitSession)
		sessions.GET("/:id/indices", handlers.Session.ListIndices)
		sessions.GET("/:id/navigation", handlers.Session.GetNavigation)
		sessions.GET("/:id/events", handlers.SessionEvents.StreamEvents)
	}

	// ─── 3. Results & Progress ─────────────────────────────────────────
	results := api.Group("/results")
	results.Use(middleware.NoStore())
	{
		// Offline attempts may be uploaded anonymously.
		results.POST("", middleware.OptionalAuth(auth), limit, handlers.Result.SaveResult)
		results.GET("/:id", middleware.OptionalAuth(auth), handlers.Result.GetResult)
		results.DELETE("/:id", middleware.OptionalAuth(auth), handlers.Result.DeleteResult)

		results.GET("", middleware.RequireAuth(auth), handlers.Result.ListResults)
		results.GET("/summary", middleware.RequireAuth(auth), handlers.Result.GetSummary)
		results.DELETE("", middleware.RequireAuth(auth), handlers.Result.DeleteAllResults)
	}

	// ─── 4. System ─────────────────────────────────────────────────────
	api.GET("/system/metrics", middleware.RequireAuth(auth), handlers.System.Metrics)

	// ─── 5. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.OptionalAuth(auth))
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}

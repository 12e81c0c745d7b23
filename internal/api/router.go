package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timmy/csvgen/internal/api/handler"
	"github.com/timmy/csvgen/internal/api/middleware"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/progress"
	"github.com/timmy/csvgen/internal/service"
)

// RouterDeps holds what the HTTP layer needs.
type RouterDeps struct {
	Generation  *service.GenerationService
	Broadcaster *progress.Broadcaster
	History     handler.HistoryStore // nil disables /api/history
	Ping        func() error
	FieldTypes  []string
	DefaultRows int
	Heartbeat   time.Duration
	MetricsPath string // empty disables metrics
	CORS        middleware.CORSConfig
	Logger      *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.Ping, deps.Generation.PoolStatus().Size)
	generationHandler := handler.NewGenerationHandler(deps.Generation, deps.FieldTypes, deps.DefaultRows)
	progressHandler := handler.NewProgressHandler(deps.Broadcaster, deps.Heartbeat)

	if deps.MetricsPath != "" {
		r.GET(deps.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/field-types", generationHandler.FieldTypes)

		api.POST("/generate-csv", generationHandler.Generate)
		api.GET("/jobs/:id", generationHandler.GetJob)
		api.GET("/download/:id", generationHandler.Download)
		api.GET("/worker-status", generationHandler.WorkerStatus)

		api.GET("/progress", progressHandler.Stream)

		if deps.History != nil {
			historyHandler := handler.NewHistoryHandler(deps.History)
			api.GET("/history", historyHandler.List)
			api.GET("/history/:id", historyHandler.Get)
		}
	}

	return r
}

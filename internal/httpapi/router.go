// Package httpapi is the HTTP routing layer over ingestion, retrieval and
// question generation.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizrag/internal/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	DocumentHandler *DocumentHandler
	GenerateHandler *GenerateHandler
	CORSOrigins     []string
	RequestTimeout  time.Duration
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(cfg.Log))
	router.Use(CORS(cfg.CORSOrigins))

	router.GET("/healthcheck", HealthCheck)

	api := router.Group("/api")
	api.Use(Timeout(cfg.RequestTimeout))
	{
		docs := api.Group("/documents")
		docs.POST("", cfg.DocumentHandler.Create)
		docs.GET("", cfg.DocumentHandler.List)
		docs.GET("/:id", cfg.DocumentHandler.Get)
		docs.DELETE("/:id", cfg.DocumentHandler.Delete)
		docs.GET("/:id/search", cfg.DocumentHandler.Search)

		gen := api.Group("/generate")
		gen.POST("", cfg.GenerateHandler.Basic)
		gen.POST("/batch", cfg.GenerateHandler.Batch)
		gen.POST("/single", cfg.GenerateHandler.Single)
		gen.POST("/single/batch", cfg.GenerateHandler.SingleBatch)
		gen.POST("/template", cfg.GenerateHandler.Template)
		gen.POST("/template/batch", cfg.GenerateHandler.TemplateBatch)
		gen.POST("/prompt", cfg.GenerateHandler.Prompt)
		gen.POST("/prompt/batch", cfg.GenerateHandler.PromptBatch)
		gen.POST("/template-enhanced", cfg.GenerateHandler.TemplateEnhanced)
	}

	return router
}

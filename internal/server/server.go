// Package server exposes the refinement engine and its collaborators over
// HTTP.
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/lifeline/internal/enrich"
	"github.com/Skufu/lifeline/internal/history"
	"github.com/Skufu/lifeline/internal/refine"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Deps are the collaborators the handlers use. Engine may be nil when models
// failed to load; History may be nil when history is disabled.
type Deps struct {
	Engine         *refine.Engine
	Enrich         enrich.Gateway
	History        history.Store
	Logger         *logrus.Logger
	AllowedOrigins []string
}

type Server struct {
	engine  *refine.Engine
	enrich  enrich.Gateway
	history history.Store
	log     *logrus.Logger
}

// New builds the router.
func New(d Deps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	gw := d.Enrich
	if gw == nil {
		gw = enrich.NewService(nil)
	}
	s := &Server{engine: d.Engine, enrich: gw, history: d.History, log: log}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		requestLogger(log),
		gin.Recovery(),
		limitBodySize(MaxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", s.ready)

	api := router.Group("/api")
	api.GET("/get_symptoms", s.getSymptoms)
	api.POST("/predict", s.predict)
	api.POST("/get_details", s.getDetails)
	api.POST("/chat", s.chat)
	api.GET("/history/:username", s.listHistory)

	return router
}

func (s *Server) ready(c *gin.Context) {
	models := "ok"
	if s.engine == nil {
		models = "unavailable"
	}

	historyStatus := "disabled"
	healthy := s.engine != nil
	if s.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		historyStatus = "ok"
		if err := s.history.Ping(ctx); err != nil {
			historyStatus = "unhealthy: " + err.Error()
			healthy = false
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"models":  models,
			"history": historyStatus,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"models":  models,
		"history": historyStatus,
	})
}

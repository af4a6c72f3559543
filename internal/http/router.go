package http

import (
	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/Bache94/ListeByBache/internal/handlers"
	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(cfg config.ServerConfig, logger *logging.Logger, h *handlers.RecordHandler, ev *handlers.EventsHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-User-ID"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/records/v1")
	v1.Use(middleware.Auth(cfg))
	{
		v1.GET("/account", h.Account)
		v1.PUT("/zones/:zone", h.CreateZone)
		v1.GET("/zones/:zone/records/:id", h.GetRecord)
		v1.PUT("/zones/:zone/records/:id", h.SaveRecord)
		v1.DELETE("/zones/:zone/records/:id", h.DeleteRecord)
		v1.POST("/zones/:zone/modify", h.Modify)
		v1.POST("/zones/:zone/query", h.Query)
		v1.POST("/zones/:zone/shares", h.CreateShare)
		v1.PUT("/zones/:zone/subscriptions/:id", h.SaveSubscription)
		v1.DELETE("/zones/:zone/subscriptions/:id", h.DeleteSubscription)
		v1.GET("/zones/:zone/events", ev.Stream)
		v1.GET("/shares/:locator", h.GetShare)
		v1.POST("/shares/:locator/accept", h.AcceptShare)
	}
	return r
}

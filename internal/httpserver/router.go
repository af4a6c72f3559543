// Package httpserver exposes a device's sync session and shopping list over
// a small local HTTP API.
package httpserver

import (
	"net/http"

	"github.com/Bache94/ListeByBache/internal/cloudsync"
	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/middleware"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(sync *cloudsync.Manager, list *shoppinglist.Store, logger *logging.Logger) *gin.Engine {
	h := &deviceHandler{sync: sync, list: list}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/sync/status", h.Status)
	r.POST("/sync/host", h.Host)
	r.POST("/sync/join", h.Join)
	r.POST("/sync/leave", h.Leave)
	r.POST("/sync/refresh", h.Refresh)

	r.GET("/chat", h.Chat)
	r.POST("/chat", h.SendChat)

	r.GET("/list", h.Items)
	r.POST("/list", h.AddItem)
	r.POST("/list/clear-checked", h.ClearChecked)
	r.POST("/list/:id/toggle", h.Toggle)
	r.DELETE("/list/:id", h.RemoveItem)

	return r
}

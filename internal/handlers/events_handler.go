package handlers

import (
	"net/http"
	"time"

	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/middleware"
	"github.com/Bache94/ListeByBache/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsHandler streams zone change notifications over a websocket.
type EventsHandler struct {
	svc    *services.RecordService
	logger *logging.Logger
}

func NewEventsHandler(svc *services.RecordService, logger *logging.Logger) *EventsHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EventsHandler{svc: svc, logger: logger}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	zone := c.Param("zone")
	sub, err := h.svc.Subscribe(userID, zone)
	if err != nil {
		writeError(c, err)
		return
	}
	hub := h.svc.Hub()
	defer hub.Unregister(sub)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("events upgrade zone=%s: %v", zone, err)
		return
	}
	defer conn.Close()
	h.logger.Debugf("events feed opened zone=%s user=%s", zone, userID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			h.logger.Debugf("events feed closed zone=%s user=%s", zone, userID)
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				h.logger.Debugf("events write zone=%s: %v", zone, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Bache94/ListeByBache/internal/cloudsync"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type deviceHandler struct {
	sync *cloudsync.Manager
	list *shoppinglist.Store
}

func (h *deviceHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

func (h *deviceHandler) Host(c *gin.Context) {
	code := h.sync.GenerateCode()
	c.JSON(http.StatusAccepted, gin.H{"code": code})
}

func (h *deviceHandler) Join(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	h.sync.Join(req.Code)
	c.JSON(http.StatusAccepted, h.sync.Snapshot())
}

func (h *deviceHandler) Leave(c *gin.Context) {
	h.sync.Leave()
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

// Refresh pulls list and chat at once instead of waiting for the schedule.
func (h *deviceHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	h.sync.ReconcileListNow(ctx)
	h.sync.ReconcileChatNow(ctx)
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

func (h *deviceHandler) Chat(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.sync.Snapshot().Chat})
}

func (h *deviceHandler) SendChat(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch err := h.sync.SendChat(req.Text); {
	case errors.Is(err, cloudsync.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, cloudsync.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusAccepted)
	}
}

func (h *deviceHandler) Items(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.list.Items()})
}

func (h *deviceHandler) AddItem(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Category string `json:"category"`
		Quantity int    `json:"quantity"`
		Unit     string `json:"unit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	it := shoppinglist.NewItem(req.Name, req.Category)
	if req.Quantity > 0 {
		it.Quantity = req.Quantity
	}
	if u := strings.TrimSpace(req.Unit); u != "" {
		it.Unit = u
	}
	h.list.Add(it)
	c.JSON(http.StatusCreated, it)
}

func (h *deviceHandler) Toggle(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	if _, found := h.list.Item(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	h.list.Toggle(id)
	it, _ := h.list.Item(id)
	c.JSON(http.StatusOK, it)
}

func (h *deviceHandler) RemoveItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	h.list.Remove(id)
	c.Status(http.StatusNoContent)
}

func (h *deviceHandler) ClearChecked(c *gin.Context) {
	h.list.ClearChecked()
	c.JSON(http.StatusOK, gin.H{"items": h.list.Items()})
}

func itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return uuid.Nil, false
	}
	return id, true
}

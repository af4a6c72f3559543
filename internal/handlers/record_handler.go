package handlers

import (
	"errors"
	"net/http"

	"github.com/Bache94/ListeByBache/internal/middleware"
	"github.com/Bache94/ListeByBache/internal/models"
	"github.com/Bache94/ListeByBache/internal/repos"
	"github.com/Bache94/ListeByBache/internal/services"
	"github.com/gin-gonic/gin"
)

type RecordHandler struct {
	svc *services.RecordService
}

func NewRecordHandler(svc *services.RecordService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

func (h *RecordHandler) Account(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id": middleware.UserIDFromContext(c),
		"status":  "available",
	})
}

func (h *RecordHandler) CreateZone(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	zone, created, err := h.svc.CreateZone(userID, c.Param("zone"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, zone)
}

func (h *RecordHandler) GetRecord(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	rec, err := h.svc.GetRecord(userID, c.Param("zone"), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *RecordHandler) SaveRecord(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body services.RecordInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	body.ID = c.Param("id")
	rec, err := h.svc.SaveRecord(userID, c.Param("zone"), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if err := h.svc.DeleteRecord(userID, c.Param("zone"), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (h *RecordHandler) Modify(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body services.ModifyInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	res, err := h.svc.Modify(userID, c.Param("zone"), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RecordHandler) Query(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body models.Query
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	records, err := h.svc.Query(userID, c.Param("zone"), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *RecordHandler) CreateShare(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body struct {
		RootRecordID string `json:"root_record_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	share, err := h.svc.CreateShare(userID, c.Param("zone"), body.RootRecordID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

func (h *RecordHandler) GetShare(c *gin.Context) {
	share, err := h.svc.GetShare(c.Param("locator"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

func (h *RecordHandler) AcceptShare(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	share, err := h.svc.AcceptShare(userID, c.Param("locator"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, share)
}

func (h *RecordHandler) SaveSubscription(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body struct {
		RecordType string `json:"record_type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	sub, err := h.svc.SaveSubscription(userID, c.Param("zone"), c.Param("id"), body.RecordType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *RecordHandler) DeleteSubscription(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if err := h.svc.DeleteSubscription(userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (h *RecordHandler) writeError(c *gin.Context, err error) {
	writeError(c, err)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repos.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrConflict), errors.Is(err, repos.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

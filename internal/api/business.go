package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"adpilot/internal/business"
	"adpilot/internal/models"
)

type Businesses interface {
	Link(ctx context.Context, req business.LinkRequest) (*models.BusinessConnection, error)
	Sync(ctx context.Context, identity string) (*models.BusinessConnection, error)
}

type BusinessHandler struct {
	directory Businesses
}

func NewBusinessHandler(directory Businesses) *BusinessHandler {
	return &BusinessHandler{directory: directory}
}

func (h *BusinessHandler) Link(c *gin.Context) {
	var req business.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conn, err := h.directory.Link(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, conn)
}

type SyncRequest struct {
	Identity string `json:"identity" binding:"required"`
}

// Sync refreshes the cached pages and Instagram accounts from the platform.
func (h *BusinessHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conn, err := h.directory.Sync(c.Request.Context(), req.Identity)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, conn)
}

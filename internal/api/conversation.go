package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adpilot/internal/apperrors"
	"adpilot/internal/campaign"
	"adpilot/internal/conversation"
	"adpilot/internal/intake"
	"adpilot/internal/logging"
	"adpilot/internal/models"
	"adpilot/internal/organic"
	"adpilot/internal/state"
)

// Conversation is the router surface the HTTP API drives.
type Conversation interface {
	HandleTurn(ctx context.Context, turn intake.Turn) conversation.Reply
	Execute(ctx context.Context, identity string, reply conversation.Reply) conversation.Reply
	States(ctx context.Context, identity string) (map[string]*state.IntakeState, error)
	LaunchCampaign(ctx context.Context, identity string, in campaign.Intent) (*campaign.Result, error)
	LaunchDraft(ctx context.Context, identity, objectiveHint string) (*campaign.Result, error)
	UpdateDraft(ctx context.Context, identity string, update *state.CampaignState) (*state.CampaignState, error)
	PublishPost(ctx context.Context, identity string, p intake.PublishPayload) (*organic.Result, error)
}

type RunLog interface {
	List(ctx context.Context, identity string, limit int) ([]models.CampaignRun, error)
}

type ConversationHandler struct {
	conv   Conversation
	runs   RunLog
	logger *zap.Logger
}

func NewConversationHandler(conv Conversation, runs RunLog, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{conv: conv, runs: runs, logger: logging.OrNop(logger)}
}

type TurnRequest struct {
	Identity string `json:"identity" binding:"required"`
	Message  string `json:"message"`
	// Execute publishes an approved post in the same request.
	Execute bool `json:"execute"`
}

func (h *ConversationHandler) Turn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	reply := h.conv.HandleTurn(ctx, intake.Turn{Identity: req.Identity, Message: req.Message})
	if req.Execute {
		reply = h.conv.Execute(ctx, req.Identity, reply)
	}
	c.JSON(http.StatusOK, reply)
}

func (h *ConversationHandler) GetState(c *gin.Context) {
	states, err := h.conv.States(c.Request.Context(), c.Param("identity"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, states)
}

type CampaignRequest struct {
	Identity string          `json:"identity" binding:"required"`
	Intent   campaign.Intent `json:"intent"`
}

func (h *ConversationHandler) CreateCampaign(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.conv.LaunchCampaign(c.Request.Context(), req.Identity, req.Intent)
	if err != nil {
		h.respondWithResult(c, err, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type DraftRequest struct {
	Identity string               `json:"identity" binding:"required"`
	Draft    *state.CampaignState `json:"draft" binding:"required"`
}

func (h *ConversationHandler) UpdateDraft(c *gin.Context) {
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	merged, err := h.conv.UpdateDraft(c.Request.Context(), req.Identity, req.Draft)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, merged)
}

type LaunchRequest struct {
	Identity  string `json:"identity" binding:"required"`
	Objective string `json:"objective"`
}

func (h *ConversationHandler) LaunchDraft(c *gin.Context) {
	var req LaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.conv.LaunchDraft(c.Request.Context(), req.Identity, req.Objective)
	if err != nil {
		h.respondWithResult(c, err, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type PostRequest struct {
	Identity string `json:"identity" binding:"required"`
	intake.PublishPayload
}

func (h *ConversationHandler) PublishPost(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.conv.PublishPost(c.Request.Context(), req.Identity, req.PublishPayload)
	if err != nil {
		if res != nil {
			respondError(c, err, res)
		} else {
			respondError(c, err, nil)
		}
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *ConversationHandler) GetRuns(c *gin.Context) {
	identity := c.Query("identity")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.runs.List(c.Request.Context(), identity, limit)
	if err != nil {
		h.logger.Error("list runs", zap.String("identity", identity), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	if list == nil {
		list = []models.CampaignRun{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *ConversationHandler) respondWithResult(c *gin.Context, err error, res *campaign.Result) {
	h.logger.Info("campaign request failed", zap.String("kind", string(apperrors.KindOf(err))), zap.Error(err))
	if res != nil {
		respondError(c, err, res)
		return
	}
	respondError(c, err, nil)
}

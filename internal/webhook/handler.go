// Package webhook receives operator chat messages from the WhatsApp Cloud API
// and answers them through the conversation router.
package webhook

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adpilot/internal/config"
	"adpilot/internal/conversation"
	"adpilot/internal/intake"
	"adpilot/internal/logging"
	"adpilot/internal/models"
)

const (
	turnTimeout = 2 * time.Minute
	// Cloud API redelivers a message until it is acknowledged; ids seen this
	// recently are dropped.
	recentIDs = 512
)

type Router interface {
	HandleTurn(ctx context.Context, turn intake.Turn) conversation.Reply
	Execute(ctx context.Context, identity string, reply conversation.Reply) conversation.Reply
}

type Operators interface {
	ByOperatorPhone(ctx context.Context, phone string) (*models.BusinessConnection, error)
}

type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
	SendImageMessage(ctx context.Context, to, imageURL, caption string) error
}

type Handler struct {
	Config    *config.Config
	router    Router
	operators Operators
	sender    Sender
	logger    *zap.Logger

	mu     sync.Mutex
	seen   map[string]bool
	order  []string
	phones map[string]*sync.Mutex
}

func NewHandler(cfg *config.Config, router Router, operators Operators, sender Sender, logger *zap.Logger) *Handler {
	return &Handler{
		Config:    cfg,
		router:    router,
		operators: operators,
		sender:    sender,
		logger:    logging.OrNop(logger),
		seen:      map[string]bool{},
		phones:    map[string]*sync.Mutex{},
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			h.logger.Info("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

type inbound struct {
	from string
	body string
}

// HandleMessage acknowledges the delivery immediately and processes the
// payload's operator messages in the background, one after another.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("bad webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	var batch []inbound
	for _, msg := range payload.Messages() {
		body := strings.TrimSpace(msg.Body())
		if body == "" {
			h.logger.Debug("ignoring message without text", zap.String("from", msg.From), zap.String("type", msg.Type))
			continue
		}
		if !h.firstDelivery(msg.ID) {
			h.logger.Debug("ignoring redelivered message", zap.String("from", msg.From), zap.String("id", msg.ID))
			continue
		}
		batch = append(batch, inbound{from: msg.From, body: body})
	}

	if len(batch) > 0 {
		go func() {
			for _, in := range batch {
				h.processInOrder(in.from, in.body)
			}
		}()
	}

	c.Status(http.StatusOK)
}

// firstDelivery records id and reports whether it was not seen before.
// Messages without an id are always processed.
func (h *Handler) firstDelivery(id string) bool {
	if id == "" {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen[id] {
		return false
	}
	h.seen[id] = true
	h.order = append(h.order, id)
	if len(h.order) > recentIDs {
		delete(h.seen, h.order[0])
		h.order = h.order[1:]
	}
	return true
}

// processInOrder serializes turns per sender number, so two payloads from the
// same operator never update the intake state concurrently.
func (h *Handler) processInOrder(from, body string) {
	h.mu.Lock()
	lock, ok := h.phones[from]
	if !ok {
		lock = &sync.Mutex{}
		h.phones[from] = lock
	}
	h.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()
	h.Process(ctx, from, body)
}

// Process runs one operator message through the router and sends the reply
// back to the same number.
func (h *Handler) Process(ctx context.Context, from, body string) {
	conn, err := h.operators.ByOperatorPhone(ctx, from)
	if err != nil {
		h.logger.Info("message from unknown operator", zap.String("from", from), zap.Error(err))
		return
	}

	reply := h.router.HandleTurn(ctx, intake.Turn{Identity: conn.Identity, Message: body})
	reply = h.router.Execute(ctx, conn.Identity, reply)

	if reply.ImageURL != "" && reply.Error == "" {
		if err := h.sender.SendImageMessage(ctx, from, reply.ImageURL, ""); err != nil {
			h.logger.Warn("preview image not delivered", zap.String("identity", conn.Identity), zap.Error(err))
		}
	}
	text := reply.Text()
	if text == "" {
		return
	}
	if err := h.sender.SendMessage(ctx, from, text); err != nil {
		h.logger.Warn("reply not delivered", zap.String("identity", conn.Identity), zap.Error(err))
	}
}

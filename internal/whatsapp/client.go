// Package whatsapp sends replies to operators over the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"adpilot/internal/config"
	"adpilot/internal/logging"
)

// maxTextLength is the Cloud API limit for a text message body.
const maxTextLength = 4096

type Client struct {
	BaseURL       string
	Version       string
	Token         string
	PhoneNumberID string
	HTTPClient    *http.Client
	logger        *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(cfg.MetaGraphURL, "/"),
		Version:       cfg.MetaAPIVersion,
		Token:         cfg.WhatsAppToken,
		PhoneNumberID: cfg.PhoneNumberID,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logging.OrNop(logger),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	Text             *TextObj  `json:"text,omitempty"`
	Image            *MediaObj `json:"image,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID      string `json:"id,omitempty"`
	Link    string `json:"link,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

// --- Messaging Methods ---

func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) error {
	if c.PhoneNumberID == "" || c.Token == "" {
		return fmt.Errorf("whatsapp channel is not configured")
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.Version, c.PhoneNumberID)
	if _, err := c.sendRequest(ctx, http.MethodPost, url, msg); err != nil {
		c.logger.Warn("whatsapp send failed", zap.String("to", msg.To), zap.String("type", msg.Type), zap.Error(err))
		return err
	}
	c.logger.Debug("whatsapp message sent", zap.String("to", msg.To), zap.String("type", msg.Type))
	return nil
}

func (c *Client) SendMessage(ctx context.Context, to, body string) error {
	if len(body) > maxTextLength {
		body = body[:maxTextLength-3] + "..."
	}
	return c.SendRawMessage(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body, PreviewUrl: true},
	})
}

func (c *Client) SendImageMessage(ctx context.Context, to, imageURL, caption string) error {
	return c.SendRawMessage(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image:            &MediaObj{Link: imageURL, Caption: caption},
	})
}

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImageClient calls an OpenAI-compatible /v1/images/generations endpoint.
type ImageClient struct {
	endpoint string
	key      string
	model    string
	http     *http.Client
}

func NewImageClient(endpoint, key, model string) *ImageClient {
	return &ImageClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		model:    model,
		http:     &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *ImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":           c.model,
		"prompt":          prompt,
		"n":               1,
		"size":            "1024x1024",
		"response_format": "url",
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/images/generations", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("image API error: %s - %s", resp.Status, string(body))
	}

	var out struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode image response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("image API returned no url")
	}
	return out.Data[0].URL, nil
}

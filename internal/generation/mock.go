package generation

import (
	"context"
	"fmt"
	"net/url"
)

// Mock backends are used when no API keys are configured.
type mockText struct{}

func NewMockText() TextGenerator { return mockText{} }

func (mockText) Generate(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf(`Here you go: {"caption": "Something fresh is coming your way (mock)", "hashtags": ["#new", "#local"]} (prompt was %d chars)`, len(prompt)), nil
}

type mockImage struct{}

func NewMockImage() ImageGenerator { return mockImage{} }

func (mockImage) GenerateImage(_ context.Context, prompt string) (string, error) {
	return "https://placehold.co/1080x1080.png?text=" + url.QueryEscape(truncate(prompt, 40)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

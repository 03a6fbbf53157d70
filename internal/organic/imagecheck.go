package organic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPImageChecker probes an image url with HEAD, falling back to a ranged GET
// for hosts that reject HEAD.
type HTTPImageChecker struct {
	Client *http.Client
}

func NewHTTPImageChecker() *HTTPImageChecker {
	return &HTTPImageChecker{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *HTTPImageChecker) CheckImage(ctx context.Context, imageURL string) error {
	resp, err := c.do(ctx, http.MethodHead, imageURL)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusForbidden) {
		resp, err = c.do(ctx, http.MethodGet, imageURL)
	}
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("image url returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return fmt.Errorf("image url serves %q, not an image", ct)
	}
	return nil
}

func (c *HTTPImageChecker) do(ctx context.Context, method, imageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

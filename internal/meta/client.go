package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adpilot/internal/config"
)

// Params is the flat parameter set of a Graph request.
type Params map[string]any

type Client struct {
	BaseURL    string
	Version    string
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(cfg.MetaGraphURL, "/"),
		Version:    cfg.MetaAPIVersion,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Helper Functions ---

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.BaseURL, c.Version, strings.TrimLeft(path, "/"))
}

// sendRequest performs a Graph call and decodes the JSON response into out.
// Both a non-2xx status and an "error" object in the body produce a *GraphError.
func (c *Client) sendRequest(ctx context.Context, method, path, token string, params Params, out any) error {
	target := c.endpoint(path)
	var bodyReader io.Reader

	if method == http.MethodGet {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, stringify(v))
		}
		if len(q) > 0 {
			target += "?" + q.Encode()
		}
	} else if params != nil {
		jsonData, err := json.Marshal(params)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Error *GraphError `json:"error"`
	}
	_ = json.Unmarshal(respBody, &envelope)
	if envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}
	if resp.StatusCode >= 400 {
		return &GraphError{
			Message:    fmt.Sprintf("API error: %s - %s", resp.Status, string(respBody)),
			StatusCode: resp.StatusCode,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// stringify renders nested values as JSON, which is how Graph expects object
// parameters in a query string.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *Client) create(ctx context.Context, path, token string, params Params) (string, error) {
	var resp idResponse
	if err := c.sendRequest(ctx, http.MethodPost, path, token, params, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func actPath(adAccountID, edge string) string {
	id := strings.TrimPrefix(adAccountID, "act_")
	return "act_" + id + "/" + edge
}

// --- Marketing Methods ---

// GetAdAccount is the preflight check that the token can see the ad account.
func (c *Client) GetAdAccount(ctx context.Context, token, adAccountID string) (*AdAccount, error) {
	var acct AdAccount
	path := "act_" + strings.TrimPrefix(adAccountID, "act_")
	err := c.sendRequest(ctx, http.MethodGet, path, token, Params{"fields": "id,name,account_status,currency"}, &acct)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) CreateCampaign(ctx context.Context, token, adAccountID string, params Params) (string, error) {
	return c.create(ctx, actPath(adAccountID, "campaigns"), token, params)
}

func (c *Client) CreateAdSet(ctx context.Context, token, adAccountID string, params Params) (string, error) {
	return c.create(ctx, actPath(adAccountID, "adsets"), token, params)
}

func (c *Client) CreateAdCreative(ctx context.Context, token, adAccountID string, params Params) (string, error) {
	return c.create(ctx, actPath(adAccountID, "adcreatives"), token, params)
}

func (c *Client) CreateAd(ctx context.Context, token, adAccountID string, params Params) (string, error) {
	return c.create(ctx, actPath(adAccountID, "ads"), token, params)
}

// --- Instagram Content Publishing ---

func (c *Client) CreateMediaContainer(ctx context.Context, token, igUserID, imageURL, caption string) (string, error) {
	return c.create(ctx, igUserID+"/media", token, Params{
		"image_url": imageURL,
		"caption":   caption,
	})
}

// GetContainerStatus returns the container's status_code (IN_PROGRESS, FINISHED, PUBLISHED, ERROR, EXPIRED).
func (c *Client) GetContainerStatus(ctx context.Context, token, containerID string) (string, error) {
	var resp struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, containerID, token, Params{"fields": "status_code,status"}, &resp); err != nil {
		return "", err
	}
	return resp.StatusCode, nil
}

func (c *Client) PublishMedia(ctx context.Context, token, igUserID, containerID string) (string, error) {
	return c.create(ctx, igUserID+"/media_publish", token, Params{"creation_id": containerID})
}

// --- Account / Asset Resolution ---

// ListPages returns the pages the token can manage along with their linked
// Instagram business accounts.
func (c *Client) ListPages(ctx context.Context, token string) ([]Page, error) {
	var resp struct {
		Data []Page `json:"data"`
	}
	params := Params{
		"fields": "id,name,access_token,phone,website,picture{url},instagram_business_account{id,username}",
		"limit":  "100",
	}
	if err := c.sendRequest(ctx, http.MethodGet, "me/accounts", token, params, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

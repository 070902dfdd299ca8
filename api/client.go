package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// Client talks to the escrow API over HTTP. It holds the bearer token
// from the last Register or Login call and attaches it to every
// authenticated request.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client for the given base URL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// SetToken installs a previously issued bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the currently held bearer token.
func (c *Client) Token() string { return c.token }

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed with code %d: %s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}

// Register enrolls a new user and keeps the issued token for
// subsequent calls.
func (c *Client) Register(req RegisterRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// Login authenticates an enrolled user and keeps the issued token.
func (c *Client) Login(username, password string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// Upload releases an asset under the given policy set.
func (c *Client) Upload(req UploadRequest) (*UploadResponse, error) {
	var out UploadResponse
	if err := c.do(http.MethodPost, "/api/assets/upload", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download runs the access decision for the asset and returns the
// decrypted content when access is granted.
func (c *Client) Download(assetID string) (*DownloadResponse, error) {
	var out DownloadResponse
	if err := c.do(http.MethodGet, "/api/assets/"+url.PathEscape(assetID)+"/download", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAssets returns summaries of every released asset.
func (c *Client) ListAssets() ([]AssetSummary, error) {
	var out []AssetSummary
	if err := c.do(http.MethodGet, "/api/assets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAsset returns one asset summary.
func (c *Client) GetAsset(assetID string) (*AssetSummary, error) {
	var out AssetSummary
	if err := c.do(http.MethodGet, "/api/assets/"+url.PathEscape(assetID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Versions lists all versions of the caller's document, newest first.
func (c *Client) Versions(name, kind string) ([]AssetSummary, error) {
	q := url.Values{"name": {name}}
	if kind != "" {
		q.Set("kind", kind)
	}
	var out []AssetSummary
	if err := c.do(http.MethodGet, "/api/versions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Revoke permanently revokes a user's access to the caller's asset.
func (c *Client) Revoke(assetID, username string) error {
	return c.do(http.MethodPost, "/api/assets/"+url.PathEscape(assetID)+"/revoke", SubjectRequest{Username: username}, nil)
}

// Grant appends a user to the caller's asset grant log.
func (c *Client) Grant(assetID, username string) error {
	return c.do(http.MethodPost, "/api/assets/"+url.PathEscape(assetID)+"/grant", SubjectRequest{Username: username}, nil)
}

// DeleteAsset removes the caller's asset record.
func (c *Client) DeleteAsset(assetID string) error {
	return c.do(http.MethodDelete, "/api/assets/"+url.PathEscape(assetID), nil, nil)
}

// DownloadCount reports the total download tally for an asset.
func (c *Client) DownloadCount(assetID string) (int64, error) {
	var out DownloadCountResponse
	if err := c.do(http.MethodGet, "/api/assets/"+url.PathEscape(assetID)+"/downloads", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Notifications returns up to limit recent release notifications,
// newest first.
func (c *Client) Notifications(limit int) ([]interfaces.Notification, error) {
	var out []interfaces.Notification
	if err := c.do(http.MethodGet, "/api/notifications?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the rowguard authorization API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// Config holds configuration for the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a new Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetToken sets the bearer token for subsequent requests.
func (c *Client) SetToken(token string) {
	c.Token = token
}

// Login performs username/password authentication and stores the token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var res struct {
		AccessToken string `json:"access_token"`
	}
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/login", map[string]string{
		"username": username,
		"password": password,
	}, &res)
	if err != nil {
		return err
	}
	c.Token = res.AccessToken
	return nil
}

// CheckPermission asks the service whether the authenticated user holds
// the permission on the resource. A false result is a decision, not an
// error.
func (c *Client) CheckPermission(ctx context.Context, resourceID, permission string) (bool, error) {
	var res struct {
		Allowed bool `json:"allowed"`
	}
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/check", map[string]string{
		"resource_id": resourceID,
		"permission":  permission,
	}, &res)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// ListPermissions returns every permission named in the resource's ACL,
// mapped to whether the authenticated user holds it.
func (c *Client) ListPermissions(ctx context.Context, resourceID string) (map[string]bool, error) {
	var res struct {
		Permissions map[string]bool `json:"permissions"`
	}
	path := fmt.Sprintf("/api/v1/resources/%s/permissions", resourceID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Permissions, nil
}

// doRequest helper to perform authenticated requests.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}

	return nil
}

// Package remote is the terminal's HTTP client for the remote store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/models"
	"bar-pos/internal/utils"
)

// Client keeps the bearer token of the last successful login.
type Client struct {
	base   string
	http   *http.Client
	device string

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		device: utils.GetDeviceID(),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type errorBody struct {
	Error string `json:"error"`
}

// do sends body as JSON and decodes a 2xx answer into out. Transport
// failures come back as ErrRemoteUnavailable, error answers as their
// taxonomy class.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Device-ID", c.device)
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.RemoteUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return apperr.FromStatus(resp.StatusCode, eb.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.RemoteUnavailable(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

type loginRequest struct {
	Business string `json:"business"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string        `json:"token"`
	User   models.User   `json:"user"`
	Bundle models.Bundle `json:"bundle"`
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, business, username, password string) (models.User, models.Bundle, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{business, username, password}, &resp)
	if err != nil {
		return models.User{}, models.Bundle{}, err
	}
	c.SetToken(resp.Token)
	return resp.User, resp.Bundle, nil
}

// RegisterRequest mirrors the server's registration body.
type RegisterRequest struct {
	BusinessName string `json:"businessName"`
	OwnerName    string `json:"ownerName"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Phone        string `json:"phone,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.User, models.Business, error) {
	var resp struct {
		Token    string          `json:"token"`
		User     models.User     `json:"user"`
		Business models.Business `json:"business"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return models.User{}, models.Business{}, err
	}
	c.SetToken(resp.Token)
	return resp.User, resp.Business, nil
}

func (c *Client) FetchBundle(ctx context.Context) (models.Bundle, error) {
	var b models.Bundle
	err := c.do(ctx, http.MethodGet, "/api/sync", nil, &b)
	return b, err
}

func tenantPath(businessID, tail string) string {
	return "/api/sync/" + url.PathEscape(businessID) + tail
}

func (c *Client) ReplaceProducts(ctx context.Context, businessID string, products []models.Product) error {
	if products == nil {
		products = []models.Product{}
	}
	return c.do(ctx, http.MethodPut, tenantPath(businessID, "/products"), products, nil)
}

func (c *Client) AppendSale(ctx context.Context, businessID string, s models.Sale) error {
	return c.do(ctx, http.MethodPost, tenantPath(businessID, "/sales"), s, nil)
}

func (c *Client) AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog) error {
	return c.do(ctx, http.MethodPost, tenantPath(businessID, "/audit-logs"), l, nil)
}

func (c *Client) SaveUser(ctx context.Context, u models.User) (models.User, error) {
	var saved models.User
	err := c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(u.ID), u, &saved)
	return saved, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SaveBusiness(ctx context.Context, b models.Business) (models.Business, error) {
	var saved models.Business
	err := c.do(ctx, http.MethodPut, "/api/businesses/"+url.PathEscape(b.ID), b, &saved)
	return saved, err
}

// Ping checks the remote store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

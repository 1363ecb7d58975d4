// Package client is the HTTP client for a punt server, used by the CLI
// and usable as a library.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"punt/pkg/domain"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateOpts mirror the creation headers; zero values mean server defaults.
type CreateOpts struct {
	TTL           string
	BurnAfterRead bool
	Private       bool
	Language      string
}

type CreateResult struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	DeleteKey  string `json:"delete_key"`
	ViewKey    string `json:"view_key,omitempty"`
	ExpiresAt  int64  `json:"expires_at"`
	TTLWarning string `json:"ttl_warning,omitempty"`
}

func (c *Client) Create(ctx context.Context, content []byte, opts CreateOpts) (*CreateResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/paste", bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if opts.TTL != "" {
		req.Header.Set("X-TTL", opts.TTL)
	}
	if opts.BurnAfterRead {
		req.Header.Set("X-Burn-After-Read", "1")
	}
	if opts.Private {
		req.Header.Set("X-Private", "1")
	}
	if opts.Language != "" {
		req.Header.Set("X-Language", opts.Language)
	}
	var result CreateResult
	if err := c.do(req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Raw fetches paste content as plain text. viewKey may be empty for
// public pastes.
func (c *Client) Raw(ctx context.Context, id, viewKey string) ([]byte, error) {
	url := c.baseURL + "/api/paste/" + id + "/raw"
	if viewKey != "" {
		url += "?key=" + viewKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, domain.MaxPasteSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

func (c *Client) Delete(ctx context.Context, id, deleteKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/paste/"+id+"/"+deleteKey, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return c.do(req, http.StatusOK, nil)
}

type LoginInit struct {
	Code        string `json:"code"`
	ExpiresAt   int64  `json:"expires_at"`
	ApprovalURL string `json:"approval_url"`
	Interval    int    `json:"interval"`
}

func (c *Client) InitLogin(ctx context.Context) (*LoginInit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cli/init", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	var init LoginInit
	if err := c.do(req, http.StatusOK, &init); err != nil {
		return nil, err
	}
	return &init, nil
}

func (c *Client) Poll(ctx context.Context, code string) (*domain.DevicePollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/cli/poll?code="+code, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	var result domain.DevicePollResult
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login runs the whole device flow: init, hand the approval URL to
// onInit, then poll until the code is approved, expires, or ctx ends.
// Returns the bearer token.
func (c *Client) Login(ctx context.Context, onInit func(*LoginInit)) (string, error) {
	init, err := c.InitLogin(ctx)
	if err != nil {
		return "", err
	}
	if onInit != nil {
		onInit(init)
	}
	interval := time.Duration(init.Interval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := time.Unix(init.ExpiresAt, 0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return "", errors.New("login code expired before approval")
		}
		result, err := c.Poll(ctx, init.Code)
		if err != nil {
			return "", err
		}
		switch result.Status {
		case domain.DeviceApproved:
			return result.Token, nil
		case domain.DeviceExpired:
			return "", errors.New("login code expired before approval")
		}
	}
}

type WhoAmI struct {
	OwnerID string            `json:"owner_id"`
	Stats   domain.OwnerStats `json:"stats"`
}

func (c *Client) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/me", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	var me WhoAmI
	if err := c.do(req, http.StatusOK, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) Tokens(ctx context.Context) ([]domain.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/me/tokens", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	var creds []domain.Credential
	if err := c.do(req, http.StatusOK, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (c *Client) RevokeToken(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/me/tokens/"+id, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return c.do(req, http.StatusOK, nil)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// APIError is a non-2xx response decoded into the server's error shape.
type APIError struct {
	StatusCode int
	Code       string
	Msg        string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s (%d %s)", e.Msg, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

func apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body domain.ErrResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		apiErr.Code = body.Error.Code
		apiErr.Msg = body.Error.Msg
	}
	return apiErr
}

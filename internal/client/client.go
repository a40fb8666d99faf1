// Package client talks to the ipblacklist HTTP API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"ipblacklist/internal/api/dto"
	"ipblacklist/internal/auth"
)

const defaultTimeout = 10 * time.Second

var ErrNotFound = errors.New("client: entry not found")

// APIError is a non-success response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for baseURL authenticating with apiKey ("clientId:secretKey").
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", baseURL)
	}
	if _, ok := auth.ParseCredential(apiKey); !ok {
		return nil, fmt.Errorf("api key must look like clientId:secretKey")
	}

	c := &Client{
		baseURL: u,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register reports ip. created is true when the server inserted a new entry.
func (c *Client) Register(ctx context.Context, ip string) (entry dto.BlacklistEntryResponse, created bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/blacklist", nil, dto.BlacklistEntryRequest{BlackIP: ip}, &entry)
	if err != nil {
		return dto.BlacklistEntryResponse{}, false, err
	}
	return entry, status == http.StatusCreated, nil
}

// Get looks up an entry by numeric id or by address.
func (c *Client) Get(ctx context.Context, key string) (dto.BlacklistEntryResponse, error) {
	var entry dto.BlacklistEntryResponse
	_, err := c.do(ctx, http.MethodGet, "/blacklist/"+url.PathEscape(key), nil, nil, &entry)
	return entry, err
}

func (c *Client) List(ctx context.Context, byFrequency bool) ([]dto.BlacklistEntryResponse, error) {
	query := url.Values{}
	if byFrequency {
		query.Set("order", "frequency")
	}

	var entries []dto.BlacklistEntryResponse
	if _, err := c.do(ctx, http.MethodGet, "/blacklist", query, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Delete(ctx context.Context, id uint64) error {
	_, err := c.do(ctx, http.MethodDelete, "/blacklist/"+strconv.FormatUint(id, 10), nil, nil, nil)
	return err
}

// Sync fetches entries created after token. An empty token requests everything.
func (c *Client) Sync(ctx context.Context, token string) (dto.SyncResponse, error) {
	query := url.Values{}
	if token != "" {
		query.Set("token", token)
	}

	var resp dto.SyncResponse
	_, err := c.do(ctx, http.MethodGet, "/blacklist/sync", query, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(auth.HeaderName, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

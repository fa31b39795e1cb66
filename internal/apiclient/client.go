package apiclient

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

	"golang.org/x/time/rate"

	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
)

var _ attendance.Remote = (*Client)(nil)

// StatusError is a non-2xx answer from the authority.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: authority returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: authority returned %d: %s", e.Op, e.Code, e.Message)
}

// Client calls the attendance authority's REST API. The bearer credential is
// shared by every request made through the client.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	limiter *rate.Limiter
	metrics *Metrics

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

// WithLimiter paces outgoing requests.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBearer attaches token to every subsequent request.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearBearer stops sending a credential.
func (c *Client) ClearBearer() {
	c.SetBearer("")
}

// Bearer returns the credential currently attached to requests.
func (c *Client) Bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (string, error) {
	var out tokenResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", creds, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login: authority returned no token")
	}
	return out.Token, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, profile auth.Profile) (string, error) {
	var out tokenResponse
	if err := c.do(ctx, "register", http.MethodPost, "/register", profile, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("register: authority returned no token")
	}
	return out.Token, nil
}

// List returns every record the authority holds.
func (c *Client) List(ctx context.Context) ([]attendance.Record, error) {
	var out []attendance.Record
	if err := c.do(ctx, "list", http.MethodGet, "/absents", nil, &out); err != nil {
		return nil, mapRecordError(err)
	}
	return out, nil
}

// Create persists a draft record.
func (c *Client) Create(ctx context.Context, draft attendance.Record) (attendance.Record, error) {
	var out attendance.Record
	if err := c.do(ctx, "create", http.MethodPost, "/absents/posts", draft, &out); err != nil {
		return attendance.Record{}, mapRecordError(err)
	}
	return out, nil
}

// Update replaces the record stored under remoteID.
func (c *Client) Update(ctx context.Context, remoteID string, rec attendance.Record) (attendance.Record, error) {
	var out attendance.Record
	if err := c.do(ctx, "update", http.MethodPut, "/absents/"+url.PathEscape(remoteID), rec, &out); err != nil {
		return attendance.Record{}, mapRecordError(err)
	}
	return out, nil
}

// Delete removes the record stored under remoteID.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	if err := c.do(ctx, "delete", http.MethodDelete, "/absents/"+url.PathEscape(remoteID), nil, nil); err != nil {
		return mapRecordError(err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	code := 0
	defer func() { c.metrics.observe(op, code, time.Since(start)) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	code = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// mapRecordError converts transport and status failures into the record
// store's error kinds.
func mapRecordError(err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %w", attendance.ErrSyncUnavailable, err)
	}
	switch {
	case se.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", attendance.ErrNotFound, err)
	case se.Code >= 500:
		return fmt.Errorf("%w: %w", attendance.ErrSyncUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", attendance.ErrWriteRejected, err)
	}
}

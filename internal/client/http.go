package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ryanKinoti/LCS-v1/internal/account"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
)

const (
	pathMe        = "/accounts/user/me/"
	pathDashboard = "/accounts/user/dashboard/"
	pathRegister  = "/accounts/register/"

	maxErrorBody = 4 << 10
)

// TokenSource supplies bearer tokens for the backend. forceRefresh asks the
// source to skip its cache.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// HTTPClient makes REST calls to the repair shop accounts API.
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     *logrus.Entry
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://127.0.0.1:8000").
// tokens may be nil for unauthenticated use.
func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		log:     logging.Discard(),
	}
}

// SetLogger replaces the request logger.
func (c *HTTPClient) SetLogger(l *logrus.Entry) {
	if l != nil {
		c.log = l
	}
}

// CurrentUser fetches GET /accounts/user/me/.
func (c *HTTPClient) CurrentUser(ctx context.Context) (*account.BackendUser, error) {
	var u account.BackendUser
	if err := c.get(ctx, pathMe, &u); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("GET %s: %w", pathMe, err)
	}
	return &u, nil
}

// Dashboard fetches GET /accounts/user/dashboard/.
func (c *HTTPClient) Dashboard(ctx context.Context) (*account.Dashboard, error) {
	body, err := c.do(ctx, http.MethodGet, pathDashboard, nil, true)
	if err != nil {
		return nil, err
	}
	d, err := account.DecodeDashboard(body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", pathDashboard, err)
	}
	return d, nil
}

// Register sends POST /accounts/register/. It does not need a token.
func (c *HTTPClient) Register(ctx context.Context, req account.RegisterRequest) (*account.RegisterResponse, error) {
	var out account.RegisterResponse
	if err := c.post(ctx, pathRegister, req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}, auth bool) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	body, err := c.do(ctx, http.MethodPost, path, data, auth)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("POST %s: decode: %w", path, err)
		}
	}
	return nil
}

// do sends one request. An authenticated request that gets 401 is retried
// once with a force-refreshed token.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, auth bool) ([]byte, error) {
	body, status, err := c.send(ctx, method, path, payload, auth, false)
	if err != nil {
		return nil, err
	}
	if auth && status == http.StatusUnauthorized {
		c.log.WithField("path", path).Debug("401 from backend, retrying with refreshed token")
		body, status, err = c.send(ctx, method, path, payload, auth, true)
		if err != nil {
			return nil, err
		}
	}
	if status >= 300 {
		return nil, newAPIError(method, path, status, body)
	}
	return body, nil
}

func (c *HTTPClient) send(ctx context.Context, method, path string, payload []byte, auth, force bool) ([]byte, int, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	if auth {
		if err := c.setAuth(ctx, req, force); err != nil {
			return nil, 0, err
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debug("backend request")
	return body, resp.StatusCode, nil
}

func (c *HTTPClient) setAuth(ctx context.Context, req *http.Request, force bool) error {
	if c.tokens == nil {
		return ErrNoToken
	}
	tok, err := c.tokens.Token(ctx, force)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	if tok == "" {
		return ErrNoToken
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// ErrNoToken is returned for authenticated calls when there is no session.
var ErrNoToken = errors.New("no identity token available")

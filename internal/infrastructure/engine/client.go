package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultClientTimeout = 15 * time.Second

// Config is the opaque payload handed to an engine on start and restart.
// The control plane never inspects it; a ConfigProvider produces it.
type Config = json.RawMessage

// ConfigProvider yields engine payloads. Implementations own the format.
type ConfigProvider interface {
	// NodeConfig returns the payload for starting a remote node's engine.
	NodeConfig(ctx context.Context, nodeID uint) (Config, error)

	// MasterConfig returns the payload for the locally run engine.
	MasterConfig(ctx context.Context) (Config, error)

	// UserPayload returns the per-user settings sent along with AddUser.
	UserPayload(ctx context.Context, username string) (Config, error)
}

// UserStat is one user's raw counter pair as reported by an engine.
type UserStat struct {
	Username string `json:"username"`
	Uplink   uint64 `json:"uplink"`
	Downlink uint64 `json:"downlink"`
}

// OutboundStat is an engine's aggregate outbound counter pair.
type OutboundStat struct {
	Uplink   uint64 `json:"uplink"`
	Downlink uint64 `json:"downlink"`
}

// Client talks to one engine's control API over HTTP+JSON. A client is
// cheap and safe for concurrent use; per-call deadlines come from the
// caller's context on top of the client's own transport timeout.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a control-API client for the engine at host:port.
func NewClient(host string, port uint16, apiToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		baseURL:  fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprintf("%d", port))),
		apiToken: strings.TrimSpace(apiToken),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetVersion probes the engine and returns its reported version.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Start starts the engine with the given payload.
func (c *Client) Start(ctx context.Context, cfg Config) error {
	body := map[string]interface{}{"config": cfg}
	return c.do(ctx, http.MethodPost, "/api/v1/start", body, nil)
}

// Restart restarts the engine in place with the given payload.
func (c *Client) Restart(ctx context.Context, cfg Config) error {
	body := map[string]interface{}{"config": cfg}
	return c.do(ctx, http.MethodPost, "/api/v1/restart", body, nil)
}

// AddUser registers a user on the engine. Returns ErrUserExists when the
// engine already has the username.
func (c *Client) AddUser(ctx context.Context, username string, payload Config) error {
	body := map[string]interface{}{"username": username}
	if len(payload) > 0 {
		body["payload"] = payload
	}
	return c.do(ctx, http.MethodPost, "/api/v1/users", body, nil)
}

// RemoveUser deletes a user from the engine. Unknown usernames are treated
// as success so removal stays idempotent.
func (c *Client) RemoveUser(ctx context.Context, username string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/users/"+url.PathEscape(username), nil, nil)
	if err != nil && isStatusError(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// GetUserStats reads per-user counters. With reset the engine zeroes its
// counters in the same call, making the read a consuming operation.
func (c *Client) GetUserStats(ctx context.Context, reset bool) ([]UserStat, error) {
	var out struct {
		Stats []UserStat `json:"stats"`
	}
	path := "/api/v1/stats/users?reset=" + boolParam(reset)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Stats, nil
}

// GetOutboundStats reads the engine's aggregate outbound counters, with the
// same read-and-reset semantics as GetUserStats.
func (c *Client) GetOutboundStats(ctx context.Context, reset bool) (*OutboundStat, error) {
	var out OutboundStat
	path := "/api/v1/stats/outbound?reset=" + boolParam(reset)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// statusError carries a non-2xx control-API response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine: http %d", e.Code)
	}
	return fmt.Sprintf("engine: http %d: %s", e.Code, e.Body)
}

func isStatusError(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == code
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures (refused, timeout, DNS) all collapse into
		// the unreachable sentinel; callers never see net internals.
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrUserExists
	case resp.StatusCode >= 400:
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))}
	}

	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func boolParam(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Package controlplane implements the machine control-plane client the
// Autoscaler uses to inspect and start worker machines, grounded on the
// teacher's EODHD client (internal/clients/eodhd/client.go): an
// *http.Client + *rate.Limiter + bearer header + typed JSON decode,
// re-pointed at a Fly.io-Machines-shaped REST API per SPEC_FULL.md's
// Open Question decision.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
)

const (
	// DefaultBaseURL targets the Fly.io Machines API shape; a real
	// deployment overrides this via ControlPlaneConfig.BaseURL.
	DefaultBaseURL   = "https://api.machines.dev/v1"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements interfaces.ControlPlane against a Fly.io-Machines-
// shaped REST API: GET /apps/{app}/machines, POST
// /apps/{app}/machines/{id}/start.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// Option configures the Client.
type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithLogger(logger *common.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond) }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// New constructs a Fly.io Machines control-plane client.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ interfaces.ControlPlane = (*Client)(nil)

type machineDTO struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// ListMachines returns every machine of app and its current state.
func (c *Client) ListMachines(ctx context.Context, app string) ([]interfaces.Machine, error) {
	path := fmt.Sprintf("/apps/%s/machines", app)
	var dtos []machineDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}
	machines := make([]interfaces.Machine, 0, len(dtos))
	for _, d := range dtos {
		machines = append(machines, interfaces.Machine{ID: d.ID, State: d.State})
	}
	return machines, nil
}

// StartMachine starts a stopped machine by id.
func (c *Client) StartMachine(ctx context.Context, app, machineID string) error {
	path := fmt.Sprintf("/apps/%s/machines/%s/start", app, machineID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// do performs a rate-limited, bearer-authenticated request against the
// control plane and decodes the JSON response into result, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apierr.New(apierr.ControlPlaneFailure, "rate limit wait").WithDetail(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apierr.New(apierr.ControlPlaneFailure, "build request").WithDetail(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.New(apierr.ControlPlaneFailure, "request failed").WithDetail(err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.New(apierr.ControlPlaneFailure, "read response").WithDetail(err.Error())
	}

	if resp.StatusCode >= 300 {
		return apierr.New(apierr.ControlPlaneFailure, fmt.Sprintf("status %d", resp.StatusCode)).WithDetail(string(data))
	}

	if result == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return apierr.New(apierr.ControlPlaneFailure, "decode response").WithDetail(err.Error())
	}
	return nil
}

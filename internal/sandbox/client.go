// Package sandbox provides the Worker Loop's HTTP client to the external,
// black-box code execution sandbox (spec.md Non-goals: sandbox
// resource-limit internals are out of scope; only the ExecutionResult
// shape it hands back is). Grounded on the control-plane client's
// rate-limited-REST-client shape (internal/controlplane/flyio.go), itself
// grounded on the teacher's internal/clients/eodhd.Client.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
)

const (
	// DefaultTimeout is the fallback HTTP client timeout when none is
	// configured.
	DefaultTimeout = 30 * time.Second
)

// Client calls a single language-runner's sandbox HTTP endpoint
// (backend/runners/common/process.py's contract, per spec.md §4.2): POST
// code + filename, get back success/stdout/stderr/exit_code/timed_out.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
}

var _ interfaces.Sandbox = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// New creates a sandbox client against baseURL (e.g.
// "http://127.0.0.1:9090", the language runner listening on this worker
// host).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type executeRequest struct {
	Code     string `json:"code"`
	Filename string `json:"filename"`
	Language string `json:"language"`
}

type executeResponse struct {
	Success      bool   `json:"success"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ExitCode     int    `json:"exit_code"`
	TimedOut     bool   `json:"timed_out"`
	MemoryUsedKB int64  `json:"memory_used_kb"`
}

// Execute runs code through the sandbox. Any transport or non-2xx
// failure is surfaced as an apierr.SandboxFailure; the Worker Loop (per
// spec.md §4.8) wraps this call in its own recover()/error handling, so
// Execute itself does not need to.
func (c *Client) Execute(ctx context.Context, code, filename, language string) (*interfaces.ExecutionResult, error) {
	reqBody, err := json.Marshal(executeRequest{Code: code, Filename: filename, Language: language})
	if err != nil {
		return nil, apierr.New(apierr.SandboxFailure, "failed to encode sandbox request").WithDetail(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(reqBody))
	if err != nil {
		return nil, apierr.New(apierr.SandboxFailure, "failed to build sandbox request").WithDetail(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("language", language).Str("filename", filename).Msg("sandbox execute request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.SandboxFailure, "sandbox request failed").WithDetail(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(apierr.SandboxFailure, "failed to read sandbox response").WithDetail(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.New(apierr.SandboxFailure, "sandbox returned non-OK status").
			WithDetail(fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(body)))
	}

	var out executeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apierr.New(apierr.SandboxFailure, "failed to decode sandbox response").WithDetail(err.Error())
	}

	return &interfaces.ExecutionResult{
		Success:      out.Success,
		Stdout:       out.Stdout,
		Stderr:       out.Stderr,
		ExitCode:     out.ExitCode,
		TimedOut:     out.TimedOut,
		MemoryUsedKB: out.MemoryUsedKB,
	}, nil
}

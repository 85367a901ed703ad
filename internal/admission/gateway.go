package admission

import (
	"context"
	"fmt"
	"regexp"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/models"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Gateway runs the three stacked filters of C3 in order, first failure
// short-circuits: API-key check, rate limiting, static code screening.
type Gateway struct {
	apiKey      string
	rateLimiter *RateLimiter
	broker      interfaces.Broker
	screenOn    bool
}

// NewGateway constructs an Admission Gateway.
func NewGateway(apiKey string, rateLimiter *RateLimiter, b interfaces.Broker, screeningOn bool) *Gateway {
	return &Gateway{apiKey: apiKey, rateLimiter: rateLimiter, broker: b, screenOn: screeningOn}
}

// CheckAuth runs filter 1. Preflight (OPTIONS) requests bypass this check
// entirely — callers should not invoke CheckAuth for them.
func (g *Gateway) CheckAuth(presented string) error {
	if presented == "" {
		return apierr.New(apierr.AuthMissing, "X-API-Key header is required")
	}
	if !CheckAPIKey(presented, g.apiKey) {
		return apierr.New(apierr.AuthInvalid, "invalid API key")
	}
	return nil
}

// CheckRateLimit runs filter 2.
func (g *Gateway) CheckRateLimit(ctx context.Context, ip, apiKey string) error {
	if !g.rateLimiter.Allow(ctx, ip, apiKey) {
		_ = g.recordSecurityEvent(ctx, fmt.Sprintf("rate_limited ip=%s", ip))
		return apierr.New(apierr.RateLimited, "rate limit exceeded")
	}
	return nil
}

// CheckSubmission runs filter 3 plus the input-shape validation items of
// §4.3 (size, filename, language). Returns the triggering detail on
// rejection so the handler can surface it to the client per spec.md §6.
func (g *Gateway) CheckSubmission(ctx context.Context, sub models.CodeSubmission) error {
	if !sub.Language.Valid() {
		return apierr.New(apierr.InvalidInput, "unsupported language").WithDetail(string(sub.Language))
	}
	if len(sub.Code) == 0 || len(sub.Code) > models.MaxCodeBytes {
		return apierr.New(apierr.InvalidInput, "code must be non-empty and at most 10000 bytes")
	}
	if len(sub.Filename) == 0 || len(sub.Filename) > models.MaxFilenameBytes || !filenamePattern.MatchString(sub.Filename) {
		return apierr.New(apierr.InvalidInput, "invalid filename").WithDetail(sub.Filename)
	}

	if !g.screenOn {
		return nil
	}

	rejected, detail := Screen(sub.Code, string(sub.Language))
	if rejected {
		_ = g.recordSecurityEvent(ctx, fmt.Sprintf("screening_rejected lang=%s detail=%s", sub.Language, detail))
		return apierr.New(apierr.ScreeningRejected, "source code rejected by static screening").WithDetail(detail)
	}

	normalized := Normalize(sub.Code, string(sub.Language))
	if len(normalized) == 0 {
		return apierr.New(apierr.InvalidInput, "code must be non-empty after stripping comments/strings")
	}

	return nil
}

// recordSecurityEvent writes a bounded observability entry (spec.md §6:
// trim to last 1000 on each push). Observability only — never consulted
// for admission decisions. Supplements the distilled spec, which reserves
// the keyspace entry but never wires a writer to it
// (original_source/backend/api/middleware/{auth,rate_limit}.py do).
func (g *Gateway) recordSecurityEvent(ctx context.Context, event string) error {
	if err := g.broker.LeftPush(ctx, broker.SecurityEventsKey, event); err != nil {
		return err
	}
	// Trim is best-effort; a missed trim just means the list grows past
	// 1000 until the next successful push, never an error to the caller.
	_ = g.broker.TrimList(ctx, broker.SecurityEventsKey, 1000)
	return nil
}

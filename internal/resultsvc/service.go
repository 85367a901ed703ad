// Package resultsvc implements the Result Service (C5): a read-through
// cache over the Job Store serving current status + decoded result, plus
// the result self-heal rule documented in spec.md §9.
package resultsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/models"
)

const (
	terminalCacheTTL   = 300 * time.Second
	inProgressCacheTTL = 30 * time.Second
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)

// GetResultResponse is the wire shape returned by GET /api/get_result/{job_id}.
type GetResultResponse struct {
	Status models.Status  `json:"status"`
	Result *models.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type cacheEnvelope struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Clock lets tests control the cache-write timestamp.
type Clock func() int64

// Service implements get_result, cache_stats, and clear (§4.5).
type Service struct {
	store   interfaces.JobStore
	broker  interfaces.Broker
	logger  *common.Logger
	now     Clock
	hits    int64
	misses  int64
}

// New constructs a Result Service.
func New(store interfaces.JobStore, b interfaces.Broker, logger *common.Logger, now Clock) *Service {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Service{store: store, broker: b, logger: logger, now: now}
}

// ValidJobID reports whether id has the expected shape.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

// GetResult implements spec.md §4.5's algorithm verbatim.
func (s *Service) GetResult(ctx context.Context, jobID string) (GetResultResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return GetResultResponse{}, fmt.Errorf("resultsvc: get job %s: %w", jobID, err)
	}
	if job == nil {
		return GetResultResponse{Status: models.StatusUnknown}, nil
	}

	resp := GetResultResponse{Status: job.Status, Error: job.Error}

	if !job.Status.IsTerminal() {
		s.writeThrough(ctx, jobID, job, inProgressCacheTTL)
		return resp, nil
	}

	cacheKey := broker.CacheKey(jobID)
	cached, found, err := s.broker.Get(ctx, cacheKey)
	if err == nil && found {
		s.hits++
		var env cacheEnvelope
		if json.Unmarshal([]byte(cached), &env) == nil {
			var result models.Result
			if json.Unmarshal(env.Data, &result) == nil {
				resp.Result = &result
				return s.applySelfHeal(ctx, jobID, job, resp)
			}
		}
	}
	s.misses++

	if job.Result != nil {
		resp.Result = job.Result
	}

	s.writeThrough(ctx, jobID, job, terminalCacheTTL)

	return s.applySelfHeal(ctx, jobID, job, resp)
}

// applySelfHeal implements the one allowed non-monotonic transition: a
// stored status=failed whose decoded result carries success=true is
// corrected to completed (property 8), reconciling the worker bug
// documented in spec.md §9 where an exception after a successful sandbox
// call still marked the job failed.
func (s *Service) applySelfHeal(ctx context.Context, jobID string, job *models.Job, resp GetResultResponse) (GetResultResponse, error) {
	if job.Status == models.StatusFailed && resp.Result != nil && resp.Result.Success {
		if err := s.store.Transition(ctx, jobID, models.StatusCompleted, nil); err != nil && s.logger != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("self-heal transition failed")
		}
		resp.Status = models.StatusCompleted
		resp.Error = ""
	}
	return resp, nil
}

func (s *Service) writeThrough(ctx context.Context, jobID string, job *models.Job, ttl time.Duration) {
	if job.Result == nil {
		return
	}
	data, err := json.Marshal(job.Result)
	if err != nil {
		return
	}
	env := cacheEnvelope{Timestamp: s.now(), Data: data}
	encoded, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = s.broker.SetWithTTL(ctx, broker.CacheKey(jobID), string(encoded), ttl)
}

// CacheStats returns advisory hit/miss counters.
func (s *Service) CacheStats() (hits, misses int64) {
	return s.hits, s.misses
}

// Clear evicts the cache entry for a job — an admin-only observability
// operation.
func (s *Service) Clear(ctx context.Context, jobID string) error {
	return s.broker.Delete(ctx, broker.CacheKey(jobID))
}

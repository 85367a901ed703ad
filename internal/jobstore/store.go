// Package jobstore implements the Job Store (C2): persistence for Job
// records, their status transitions, and the 1-hour TTL, built on the
// Broker Adapter's hash operations. Mirrors the teacher's
// surrealdb.JobQueueStore in shape (one store type per concern,
// constructed with New<X>Store(broker, logger)) re-grounded on Redis
// hashes instead of SurrealDB SQL.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/models"
)

const jobTTL = time.Hour

// Store implements interfaces.JobStore over an interfaces.Broker.
type Store struct {
	broker interfaces.Broker
	logger *common.Logger
}

// New constructs a Job Store bound to the given broker.
func New(b interfaces.Broker, logger *common.Logger) *Store {
	return &Store{broker: b, logger: logger}
}

// Create writes all fields of job in one round trip and sets the 1-hour
// TTL (spec.md §4.2).
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	fields, err := toFields(job)
	if err != nil {
		return fmt.Errorf("jobstore create %s: %w", job.ID, err)
	}
	return s.broker.HashSetFields(ctx, broker.JobKey(job.ID), fields, jobTTL)
}

// Get returns the job record, or (nil, nil) when absent/expired —
// invariant 5: an absent record is a no-op, never an error.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	raw, err := s.broker.HashGetAll(ctx, broker.JobKey(id))
	if err != nil {
		return nil, fmt.Errorf("jobstore get %s: %w", id, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return fromFields(raw)
}

// Transition performs a pipelined multi-field set of the new status plus
// any extra fields (e.g. result, error, completed_at). It is idempotent —
// writing the same terminal status twice is a no-op logically — and does
// NOT itself enforce monotonicity; that is the worker loop's contract
// (models.IsValidTransition exists for callers that want to check).
func (s *Store) Transition(ctx context.Context, id string, to models.Status, extra map[string]any) error {
	fields := map[string]any{"status": string(to)}
	for k, v := range extra {
		fields[k] = v
	}
	// Preserve the existing TTL rather than resetting the 1-hour window on
	// every transition — a job shouldn't live longer just because it was
	// touched late in its lifecycle.
	return s.broker.HashSetFields(ctx, broker.JobKey(id), fields, 0)
}

func toFields(job *models.Job) (map[string]any, error) {
	fields := map[string]any{
		"id":         job.ID,
		"code":       job.Code,
		"language":   string(job.Language),
		"filename":   job.Filename,
		"status":     string(job.Status),
		"created_at": job.CreatedAt,
	}
	if job.CompletedAt != 0 {
		fields["completed_at"] = job.CompletedAt
	}
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return nil, err
		}
		fields["result"] = string(data)
	}
	if job.Error != "" {
		fields["error"] = job.Error
	}
	return fields, nil
}

func fromFields(raw map[string]string) (*models.Job, error) {
	job := &models.Job{
		ID:       raw["id"],
		Code:     raw["code"],
		Language: models.Language(raw["language"]),
		Filename: raw["filename"],
		Status:   models.Status(raw["status"]),
		Error:    raw["error"],
	}
	if v, ok := raw["created_at"]; ok {
		job.CreatedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := raw["completed_at"]; ok {
		job.CompletedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := raw["result"]; ok && v != "" {
		result, err := DecodeResult(v)
		if err == nil {
			job.Result = result
		}
	}
	return job, nil
}

// DecodeResult decodes a stored result value through at most two layers
// of JSON, handling the legacy double-encoded values documented in
// spec.md §9. When neither layer decodes into a Result it returns an
// error; the raw string is not passed through anywhere — fromFields then
// leaves Job.Result nil.
func DecodeResult(raw string) (*models.Result, error) {
	var result models.Result
	if err := json.Unmarshal([]byte(raw), &result); err == nil {
		return &result, nil
	}

	// First layer wasn't a Result — maybe it's a JSON string containing
	// JSON (double-encoded). Try unwrapping once more.
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inner), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

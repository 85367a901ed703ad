package interfaces

import (
	"context"

	"github.com/codr-run/codr/internal/models"
)

// JobStore persists Job records and their status transitions (C2).
// Get returns (nil, nil) when the record is absent — callers translate
// that into status "unknown", it is never an error.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Transition(ctx context.Context, id string, to models.Status, extra map[string]any) error
}

// ResultCache describes a read-through cache for terminal job results.
// The Result Service (C5) does not use it: it reads and writes its
// cache:<job_id> entries directly through the Broker.
type ResultCache interface {
	Get(ctx context.Context, jobID string) (string, bool, error)
	Put(ctx context.Context, jobID string, data string, terminal bool) error
	Clear(ctx context.Context, jobID string) error
	Stats(ctx context.Context) (hits, misses int64)
}

// SecurityEventRecorder records admission-rejection observability events
// (spec.md's `security_events` bounded list). Advisory only — never
// consulted for admission decisions.
type SecurityEventRecorder interface {
	RecordSecurityEvent(ctx context.Context, event string) error
}

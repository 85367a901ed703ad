// Package submission implements the Submission Service (C4): accepts a
// CodeSubmission, produces a job_id, writes the initial job record,
// enqueues to queue:<language>, and emits a job_notifications signal.
// Grounded on jobmanager.enqueue (internal/services/jobmanager/queue.go):
// write record, push to queue, broadcast — generalised from a single
// local priority queue + WS hub to a per-language broker list +
// job_notifications pub/sub publish.
package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codr-run/codr/internal/admission"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/models"
)

// Clock lets tests control the submission timestamp.
type Clock func() int64

// Service implements Submit per spec.md §4.4.
type Service struct {
	gateway *admission.Gateway
	store   interfaces.JobStore
	broker  interfaces.Broker
	logger  *common.Logger
	now     Clock
}

// New constructs a Submission Service.
func New(gateway *admission.Gateway, store interfaces.JobStore, b interfaces.Broker, logger *common.Logger, now Clock) *Service {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Service{gateway: gateway, store: store, broker: b, logger: logger, now: now}
}

// Submit runs the submission through C3, generates a job id, writes the
// initial Job record via C2 with status=queued, left-pushes the id onto
// its language queue, then publishes a best-effort notification.
//
// Error contract: auth/validation errors surface as distinct apierr
// kinds; a broker write failure after record-creation-but-before-enqueue
// leaves an orphan record that simply expires (invariant 5) — a failure
// after enqueue is structurally impossible because the notification
// publish is last and best-effort.
func (s *Service) Submit(ctx context.Context, sub models.CodeSubmission, apiKey, clientIP string) (string, error) {
	if err := s.gateway.CheckAuth(apiKey); err != nil {
		return "", err
	}
	if err := s.gateway.CheckRateLimit(ctx, clientIP, apiKey); err != nil {
		return "", err
	}
	if err := s.gateway.CheckSubmission(ctx, sub); err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	job := &models.Job{
		ID:        jobID,
		Code:      sub.Code,
		Language:  sub.Language,
		Filename:  sub.Filename,
		Status:    models.StatusQueued,
		CreatedAt: s.now(),
	}

	if err := s.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("submission: create job record: %w", err)
	}

	queue := broker.QueueKey(string(sub.Language))
	if err := s.broker.LeftPush(ctx, queue, jobID); err != nil {
		return "", fmt.Errorf("submission: enqueue job: %w", err)
	}

	if err := s.broker.Publish(ctx, broker.NotificationsChannel, []byte(sub.Language)); err != nil {
		if s.logger != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("job_notifications publish failed")
		}
	}

	return jobID, nil
}

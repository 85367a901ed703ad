package submission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codr-run/codr/internal/admission"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/jobstore"
	"github.com/codr-run/codr/internal/models"
)

func newTestService(t *testing.T) (*Service, *broker.Memory) {
	t.Helper()
	b := broker.NewMemory()
	rl := admission.NewRateLimiter(b, 15, 100, []byte("k"))
	gw := admission.NewGateway("correct-key", rl, b, true)
	store := jobstore.New(b, nil)
	svc := New(gw, store, b, nil, func() int64 { return 1000 })
	return svc, b
}

func TestSubmit_HappyPath(t *testing.T) {
	svc, b := newTestService(t)
	ctx := context.Background()

	jobID, err := svc.Submit(ctx, models.CodeSubmission{
		Code:     "print(1)",
		Language: models.LangPython,
		Filename: "x.py",
	}, "correct-key", "1.1.1.1")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := jobstore.New(b, nil).Get(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, models.StatusQueued, job.Status)

	n, err := b.QueueLen(ctx, "queue:python")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSubmit_RejectsInvalidKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, models.CodeSubmission{
		Code:     "print(1)",
		Language: models.LangPython,
		Filename: "x.py",
	}, "wrong-key", "1.1.1.1")
	require.Error(t, err)
}

func TestSubmit_RejectsScreenedCode_NoRecordNoQueueEntry(t *testing.T) {
	svc, b := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, models.CodeSubmission{
		Code:     "import os\nos.system('ls')",
		Language: models.LangPython,
		Filename: "x.py",
	}, "correct-key", "1.1.1.1")
	require.Error(t, err)

	records, err := b.KeysByPrefix(ctx, "job:")
	require.NoError(t, err)
	require.Empty(t, records)

	n, err := b.QueueLen(ctx, "queue:python")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

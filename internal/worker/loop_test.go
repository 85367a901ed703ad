package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/jobstore"
	"github.com/codr-run/codr/internal/models"
)

// fakeSandbox lets tests script one Execute outcome at a time.
type fakeSandbox struct {
	result *interfaces.ExecutionResult
	err    error
	calls  int
}

func (f *fakeSandbox) Execute(ctx context.Context, code, filename, language string) (*interfaces.ExecutionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newHarness(t *testing.T, sandbox interfaces.Sandbox) (*Loop, interfaces.JobStore, interfaces.Broker) {
	t.Helper()
	b := broker.NewMemory()
	logger := common.NewSilentLogger()
	store := jobstore.New(b, logger)
	loop := New("python", store, b, sandbox, logger)
	return loop, store, b
}

func mustCreateJob(t *testing.T, store interfaces.JobStore, id, lang string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &models.Job{
		ID:        id,
		Code:      "print(1)",
		Language:  models.Language(lang),
		Filename:  "main.py",
		Status:    models.StatusQueued,
		CreatedAt: time.Now().Unix(),
	}))
}

func TestProcessJob_HappyPathTransitionsToCompleted(t *testing.T) {
	sandbox := &fakeSandbox{result: &interfaces.ExecutionResult{Success: true, Stdout: "1\n", ExitCode: 0}}
	loop, store, _ := newHarness(t, sandbox)
	mustCreateJob(t, store, "job-1", "python")

	loop.processJob(context.Background(), "job-1")

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.True(t, job.Result.Success)
	require.Equal(t, 1, sandbox.calls)
}

func TestProcessJob_SandboxErrorTransitionsToFailed(t *testing.T) {
	sandbox := &fakeSandbox{err: errors.New("sandbox unreachable")}
	loop, store, _ := newHarness(t, sandbox)
	mustCreateJob(t, store, "job-2", "python")

	loop.processJob(context.Background(), "job-2")

	job, err := store.Get(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, job.Status)
	require.Equal(t, "sandbox unreachable", job.Error)
}

func TestProcessJob_LanguageMismatchSkipsWithoutTransition(t *testing.T) {
	sandbox := &fakeSandbox{}
	loop, store, _ := newHarness(t, sandbox)
	mustCreateJob(t, store, "job-3", "rust")

	loop.processJob(context.Background(), "job-3")

	job, err := store.Get(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, models.StatusQueued, job.Status)
	require.Equal(t, 0, sandbox.calls)
}

func TestProcessJob_MissingJobIsNoop(t *testing.T) {
	sandbox := &fakeSandbox{}
	loop, _, _ := newHarness(t, sandbox)

	loop.processJob(context.Background(), "does-not-exist")

	require.Equal(t, 0, sandbox.calls)
}

func TestProcessJob_SyntacticallyInvalidIDSkipped(t *testing.T) {
	sandbox := &fakeSandbox{}
	loop, _, _ := newHarness(t, sandbox)

	loop.processJob(context.Background(), "../../etc/passwd")

	require.Equal(t, 0, sandbox.calls)
}

func TestProcessJob_PanicInSandboxMapsToFailed(t *testing.T) {
	loop, store, _ := newHarness(t, &panicSandbox{})
	mustCreateJob(t, store, "job-4", "python")

	loop.processJob(context.Background(), "job-4")

	job, err := store.Get(context.Background(), "job-4")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, job.Status)
	require.Contains(t, job.Error, "sandbox panic")
}

type panicSandbox struct{}

func (panicSandbox) Execute(ctx context.Context, code, filename, language string) (*interfaces.ExecutionResult, error) {
	panic("kernel exploded")
}

// instantEmptyBroker always reports its queue empty without sleeping, so
// the idle-timeout path can be exercised without waiting out the real
// 30s blocking-pop timeout.
type instantEmptyBroker struct {
	interfaces.Broker
}

func (instantEmptyBroker) BlockingRightPop(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	return "", nil
}

func TestRun_ExitsAfterMaxIdle(t *testing.T) {
	sandbox := &fakeSandbox{}
	store := jobstore.New(broker.NewMemory(), common.NewSilentLogger())
	loop := New("python", store, instantEmptyBroker{}, sandbox, common.NewSilentLogger())

	start := time.Unix(0, 0)
	ticks := 0
	loop.now = func() time.Time {
		ticks++
		// Each call advances one minute, so the idle span exceeds
		// maxIdleTotal (2m) on the third empty poll and the loop exits.
		return start.Add(time.Duration(ticks) * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := loop.Run(ctx)
	require.NoError(t, err)
}

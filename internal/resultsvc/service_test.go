package resultsvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/jobstore"
	"github.com/codr-run/codr/internal/models"
)

func TestGetResult_AbsentJobReturnsUnknown(t *testing.T) {
	b := broker.NewMemory()
	store := jobstore.New(b, nil)
	svc := New(store, b, nil, func() int64 { return 1 })

	resp, err := svc.GetResult(context.Background(), "missing")
	require.NoError(t, err)
	require.Equal(t, models.StatusUnknown, resp.Status)
	require.Nil(t, resp.Result)
}

func TestGetResult_CompletedJobReturnsResult(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	store := jobstore.New(b, nil)
	svc := New(store, b, nil, func() int64 { return 1 })

	job := &models.Job{ID: "j1", Language: models.LangPython, Status: models.StatusQueued, CreatedAt: 1}
	require.NoError(t, store.Create(ctx, job))
	require.NoError(t, store.Transition(ctx, "j1", models.StatusCompleted, map[string]any{
		"result": `{"success":true,"stdout":"1\n","stderr":"","exit_code":0}`,
	}))

	resp, err := svc.GetResult(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, resp.Status)
	require.NotNil(t, resp.Result)
	require.True(t, resp.Result.Success)
}

func TestGetResult_SelfHealsFailedWithSuccessResult(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	store := jobstore.New(b, nil)
	svc := New(store, b, nil, func() int64 { return 1 })

	job := &models.Job{ID: "j2", Language: models.LangGo, Status: models.StatusQueued, CreatedAt: 1}
	require.NoError(t, store.Create(ctx, job))
	require.NoError(t, store.Transition(ctx, "j2", models.StatusFailed, map[string]any{
		"error":  "communication error after sandbox success",
		"result": `{"success":true,"stdout":"ok","stderr":"","exit_code":0}`,
	}))

	resp, err := svc.GetResult(ctx, "j2")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, resp.Status, "self-heal should correct failed->completed")
	require.Empty(t, resp.Error)

	stored, err := store.Get(ctx, "j2")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, stored.Status, "self-heal should persist the correction")
}

func TestGetResult_InProgressJobDoesNotSelfHeal(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	store := jobstore.New(b, nil)
	svc := New(store, b, nil, func() int64 { return 1 })

	job := &models.Job{ID: "j3", Language: models.LangGo, Status: models.StatusProcessing, CreatedAt: 1}
	require.NoError(t, store.Create(ctx, job))

	resp, err := svc.GetResult(ctx, "j3")
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, resp.Status)
}

func TestClear_EvictsCacheEntry(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	store := jobstore.New(b, nil)
	svc := New(store, b, nil, func() int64 { return 1 })

	require.NoError(t, b.SetWithTTL(ctx, "cache:j4", `{}`, 0))
	require.NoError(t, svc.Clear(ctx, "j4"))
	_, found, err := b.Get(ctx, "cache:j4")
	require.NoError(t, err)
	require.False(t, found)
}

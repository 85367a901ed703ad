package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/models"
)

func newTestStore() *Store {
	return New(broker.NewMemory(), nil)
}

func TestStore_CreateThenGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	job := &models.Job{
		ID:        "abc123",
		Code:      "print(1)",
		Language:  models.LangPython,
		Filename:  "main.py",
		Status:    models.StatusQueued,
		CreatedAt: 1000,
	}
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, job.Code, got.Code)
	require.Equal(t, models.StatusQueued, got.Status)
}

func TestStore_Get_AbsentReturnsNilNoError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	got, err := s.Get(ctx, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_Transition_SetsStatusAndExtraFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	job := &models.Job{ID: "j1", Language: models.LangGo, Status: models.StatusQueued, CreatedAt: 1}
	require.NoError(t, s.Create(ctx, job))

	require.NoError(t, s.Transition(ctx, "j1", models.StatusCompleted, map[string]any{
		"result":       `{"success":true,"stdout":"1\n","stderr":"","exit_code":0}`,
		"completed_at": int64(42),
	}))

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	require.True(t, got.Result.Success)
	require.Equal(t, int64(42), got.CompletedAt)
}

func TestDecodeResult_HandlesDoubleEncoding(t *testing.T) {
	inner := `{"success":true,"stdout":"1\n","stderr":"","exit_code":0}`
	doubleEncoded := `"` + escapeForJSONString(inner) + `"`

	result, err := DecodeResult(doubleEncoded)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "1\n", result.Stdout)
}

func TestDecodeResult_SingleLayer(t *testing.T) {
	result, err := DecodeResult(`{"success":false,"stdout":"","stderr":"boom","exit_code":1}`)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "boom", result.Stderr)
}

// escapeForJSONString produces the JSON-string-escaped form of s, used to
// construct a double-encoded fixture without importing encoding/json
// into the test just for that.
func escapeForJSONString(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		switch c {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

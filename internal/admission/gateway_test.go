package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/models"
)

func newTestGateway() (*Gateway, *broker.Memory) {
	b := broker.NewMemory()
	rl := NewRateLimiter(b, 15, 100, []byte("test-hmac-key"))
	return NewGateway("correct-key", rl, b, true), b
}

func TestGateway_CheckAuth(t *testing.T) {
	g, _ := newTestGateway()

	require.NoError(t, g.CheckAuth("correct-key"))
	require.Error(t, g.CheckAuth("wrong-key"))
	require.Error(t, g.CheckAuth(""))
}

func TestGateway_CheckRateLimit_AllowsUnderLimit(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, g.CheckRateLimit(ctx, "1.2.3.4", "correct-key"))
	}
	require.Error(t, g.CheckRateLimit(ctx, "1.2.3.4", "correct-key"))
}

func TestGateway_CheckSubmission_RejectsScreening(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	err := g.CheckSubmission(ctx, models.CodeSubmission{
		Code:     "import os\nos.system('ls')",
		Language: models.LangPython,
		Filename: "x.py",
	})
	require.Error(t, err)
}

func TestGateway_CheckSubmission_AcceptsSafeCode(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	err := g.CheckSubmission(ctx, models.CodeSubmission{
		Code:     "print(1)",
		Language: models.LangPython,
		Filename: "x.py",
	})
	require.NoError(t, err)
}

func TestGateway_CheckSubmission_RejectsBadFilename(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	err := g.CheckSubmission(ctx, models.CodeSubmission{
		Code:     "print(1)",
		Language: models.LangPython,
		Filename: "../etc/passwd",
	})
	require.Error(t, err)
}

func TestGateway_CheckSubmission_RejectsUnknownLanguage(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	err := g.CheckSubmission(ctx, models.CodeSubmission{
		Code:     "print(1)",
		Language: "brainfuck",
		Filename: "x.bf",
	})
	require.Error(t, err)
}

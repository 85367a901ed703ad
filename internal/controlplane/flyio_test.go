package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListMachines_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/apps/codr-python-runner/machines", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]machineDTO{
			{ID: "m1", State: "started"},
			{ID: "m2", State: "stopped"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token", WithRateLimit(1000))
	machines, err := c.ListMachines(context.Background(), "codr-python-runner")

	require.NoError(t, err)
	require.Len(t, machines, 2)
	require.Equal(t, "started", machines[0].State)
	require.Equal(t, "stopped", machines[1].State)
}

func TestStartMachine_PostsToCorrectPath(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/apps/codr-rust-runner/machines/m9/start", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token", WithRateLimit(1000))
	err := c.StartMachine(context.Background(), "codr-rust-runner", "m9")

	require.NoError(t, err)
	require.True(t, called)
}

func TestDo_NonSuccessStatusIsControlPlaneFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token", WithRateLimit(1000))
	_, err := c.ListMachines(context.Background(), "codr-python-runner")

	require.Error(t, err)
}

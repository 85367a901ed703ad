package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecute_ParsesSuccessResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/execute", r.URL.Path)
		var req executeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "python", req.Language)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(executeResponse{
			Success:  true,
			Stdout:   "hello\n",
			ExitCode: 0,
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	result, err := c.Execute(context.Background(), "print('hello')", "main.py", "python")

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "hello\n", result.Stdout)
}

func TestExecute_NonOKStatusIsSandboxFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("runner crashed"))
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, err := c.Execute(context.Background(), "code", "main.py", "python")

	require.Error(t, err)
}

package server

import (
	"net/http"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/models"
	"github.com/codr-run/codr/internal/resultsvc"
)

// handleHealth implements GET /api/health (spec.md §6): requires a key,
// returns {status: "ok"}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if err := s.app.Gateway.CheckAuth(r.Header.Get("X-API-Key")); err != nil {
		writeAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitCodeResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// handleSubmitCode implements POST /api/submit_code.
func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var sub models.CodeSubmission
	if !DecodeJSON(w, r, &sub) {
		return
	}

	apiKey := r.Header.Get("X-API-Key")
	ip := clientIP(r)

	jobID, err := s.app.Submission.Submit(r.Context(), sub, apiKey, ip)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, submitCodeResponse{JobID: jobID, Message: "Job queued"})
}

// handleGetResult implements GET /api/get_result/{job_id}: 200 always,
// including status "unknown"; 400 for a malformed job_id.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathParam(r, "/api/get_result/", "")
	if !resultsvc.ValidJobID(jobID) {
		WriteError(w, http.StatusBadRequest, "malformed job_id")
		return
	}

	resp, err := s.app.Results.GetResult(r.Context(), jobID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

type wsTokenRequest struct {
	JobID string `json:"job_id"`
}

type wsTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// handleWSToken implements POST /api/ws-token: requires the API key,
// issues a stream token scoped to job_id.
func (s *Server) handleWSToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.app.Gateway.CheckAuth(r.Header.Get("X-API-Key")); err != nil {
		writeAPIError(w, err)
		return
	}

	var req wsTokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !resultsvc.ValidJobID(req.JobID) {
		WriteError(w, http.StatusBadRequest, "malformed job_id")
		return
	}

	token, err := s.app.Tokens.Issue(req.JobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	WriteJSON(w, http.StatusOK, wsTokenResponse{
		Token:     token,
		ExpiresIn: int64(s.app.Config.Auth.GetStreamTokenTTL().Seconds()),
	})
}

// handleCacheStats implements GET /api/cache/stats (admin-only).
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if err := s.app.Gateway.CheckAuth(r.Header.Get("X-API-Key")); err != nil {
		writeAPIError(w, err)
		return
	}
	hits, misses := s.app.Results.CacheStats()
	WriteJSON(w, http.StatusOK, map[string]int64{"hits": hits, "misses": misses})
}

// handleCacheClear implements DELETE /api/cache/{job_id} (admin-only).
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	if err := s.app.Gateway.CheckAuth(r.Header.Get("X-API-Key")); err != nil {
		writeAPIError(w, err)
		return
	}

	jobID := PathParam(r, "/api/cache/", "")
	if !resultsvc.ValidJobID(jobID) {
		WriteError(w, http.StatusBadRequest, "malformed job_id")
		return
	}
	if err := s.app.Results.Clear(r.Context(), jobID); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to clear cache entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWSUpgrade implements GET /ws/jobs/{job_id}?token=...; the Stream
// Service hub runs the full handshake (§4.6) itself.
func (s *Server) handleWSUpgrade(w http.ResponseWriter, r *http.Request) {
	jobID := PathParam(r, "/ws/jobs/", "")
	if !resultsvc.ValidJobID(jobID) {
		WriteError(w, http.StatusBadRequest, "malformed job_id")
		return
	}
	s.app.Stream.HandleUpgrade(w, r, jobID)
}

// writeAPIError maps an apierr.Error to its HTTP status; any other error
// is treated as an internal failure.
func writeAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierr.As(err); ok {
		body := map[string]string{"error": apiErr.Message}
		if apiErr.Detail != "" {
			body["detail"] = apiErr.Detail
		}
		WriteJSON(w, apiErr.Kind.ToHTTPStatus(), body)
		return
	}
	WriteError(w, http.StatusInternalServerError, "internal server error")
}

package server

import "net/http"

// registerRoutes sets up all routes on the mux (spec.md §6).
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)

	mux.HandleFunc("/api/submit_code", s.handleSubmitCode)
	mux.HandleFunc("/api/get_result/", s.handleGetResult)
	mux.HandleFunc("/api/ws-token", s.handleWSToken)

	mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/api/cache/", s.handleCacheClear)

	mux.HandleFunc("/ws/jobs/", s.handleWSUpgrade)
}

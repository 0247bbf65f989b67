package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, &APIError{Status: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Message: "llm stats unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.cfg.OpenAIModel,
		"stats": s.stats.Snapshot(),
	})
}

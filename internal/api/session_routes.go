package api

import "net/http"

type resetResponse struct {
	Discarded int `json:"discarded"`
}

// handleResetSessions drops every browser page. Pages still in use are closed
// once their fetch finishes, so the reply does not wait for them.
func (s *Server) handleResetSessions(w http.ResponseWriter, r *http.Request) {
	n := s.sessions.ResetSessions()
	s.log.Info().Int("discarded", n).Str("remote", r.RemoteAddr).Msg("price sessions reset")
	writeJSON(w, http.StatusAccepted, resetResponse{Discarded: n})
}

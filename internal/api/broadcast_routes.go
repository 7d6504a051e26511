package api

import (
	"net/http"

	"github.com/kjannette/dolarbot/internal/models"
)

type triggerResponse struct {
	Interval string `json:"interval"`
	Status   string `json:"status"`
}

// handleTriggerBroadcast starts a batch in the background and returns at once.
func (s *Server) handleTriggerBroadcast(w http.ResponseWriter, r *http.Request) {
	interval, err := models.ParseInterval(r.PathValue("interval"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid interval, expected hourly, daily or weekly")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rep, err := s.scheduler.Trigger(s.ctx, interval)
		if err != nil {
			s.log.Error().Err(err).Str("interval", interval.String()).Msg("manual batch failed")
			return
		}
		s.log.Info().Str("interval", interval.String()).Str("batch", rep.ID).Int("delivered", rep.Delivered).Msg("manual batch finished")
	}()

	writeJSON(w, http.StatusAccepted, triggerResponse{Interval: interval.String(), Status: "started"})
}

package api

import (
	"net/http"

	"github.com/kjannette/dolarbot/internal/models"
)

func (s *Server) handleLatestPrices(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.All(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list cached snapshots")
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	iso := r.PathValue("iso")
	if !validateISO(iso) {
		writeError(w, http.StatusBadRequest, "invalid currency, expected a 3-letter ISO code")
		return
	}
	iso = models.NormalizeISO(iso)
	if !s.sessions.Tracks(iso) {
		writeError(w, http.StatusNotFound, "currency is not tracked")
		return
	}

	snap, ok, err := s.snapshots.Get(r.Context(), iso)
	if err != nil {
		s.log.Error().Err(err).Str("iso", iso).Msg("read cached snapshot")
		writeError(w, http.StatusInternalServerError, "failed to fetch price")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no price fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

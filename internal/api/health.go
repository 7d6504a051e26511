package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  healthServices    `json:"services"`
	NextRuns  map[string]string `json:"nextRuns,omitempty"`
}

type healthServices struct {
	Database     string `json:"database"`
	Scheduler    string `json:"scheduler"`
	OpenSessions int    `json:"openSessions"`
	Subscribers  *int64 `json:"subscribers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"

	dbStatus := "connected"
	if err := s.db.Ping(ctx); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
	}

	schedStatus := "stopped"
	next := map[string]string{}
	if s.scheduler != nil {
		if s.scheduler.Running() {
			schedStatus = "running"
		}
		for interval, at := range s.scheduler.NextRuns() {
			if !at.IsZero() {
				next[interval.String()] = at.UTC().Format(time.RFC3339)
			}
		}
	}

	svc := healthServices{
		Database:     dbStatus,
		Scheduler:    schedStatus,
		OpenSessions: s.sessions.OpenSessions(),
	}
	if s.subscribers != nil && dbStatus == "connected" {
		if n, err := s.subscribers.Count(ctx); err == nil {
			svc.Subscribers = &n
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  svc,
		NextRuns:  next,
	})
}

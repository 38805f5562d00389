package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	Journal   string `json:"journal"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	sched := "detached"
	if s.scheduler != nil {
		sched = "running"
		if s.scheduler.Stopped() {
			sched = "stopped"
		}
	}
	jrnl := "disabled"
	if s.journal != nil {
		jrnl = "enabled"
	}

	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   s.config.Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: sched,
		Journal:   jrnl,
	})
}

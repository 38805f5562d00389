package server

import (
	"net/http"

	"github.com/me/coloop/internal/scheduler"
	"github.com/me/coloop/internal/tasklib"
	"github.com/me/coloop/pkg/model"
)

type schedulerResponse struct {
	RunID            string                `json:"run_id"`
	Stopped          bool                  `json:"stopped"`
	HasWork          bool                  `json:"has_work"`
	HasContinuations bool                  `json:"has_continuations"`
	HasThreads       bool                  `json:"has_threads"`
	Pending          int64                 `json:"pending"`
	Stats            scheduler.Stats       `json:"stats"`
	Offload          *tasklib.OffloadStats `json:"offload,omitempty"`
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.scheduler == nil {
		respondError(w, reqID, &model.APIError{Code: model.ErrDisabled, Message: "no scheduler attached to this server"})
		return
	}
	sv := s.scheduler
	resp := schedulerResponse{
		RunID:            sv.RunID(),
		Stopped:          sv.Stopped(),
		HasWork:          sv.HasWork(),
		HasContinuations: sv.HasContinuations(),
		HasThreads:       sv.HasThreads(),
		Pending:          sv.Pending(),
		Stats:            sv.Stats(),
	}
	if s.offload != nil {
		st := s.offload.OffloadStats()
		resp.Offload = &st
	}
	respondOK(w, reqID, resp)
}

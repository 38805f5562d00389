package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/coloop/pkg/model"
)

func (s *Server) journalDisabled(w http.ResponseWriter, reqID string) bool {
	if s.journal != nil {
		return false
	}
	respondError(w, reqID, &model.APIError{Code: model.ErrDisabled, Message: "journal is not enabled"})
	return true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.journalDisabled(w, reqID) {
		return
	}
	opts, apiErr := model.ParseListOptions(r.URL.Query(), "state")
	if apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}

	runs, total, err := s.journal.ListRuns(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []*model.RunSummary{}
	}
	respondPage(w, reqID, runs, opts.Page(total))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.journalDisabled(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.journal.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if run == nil {
		respondError(w, reqID, model.NewNotFoundError("run", id))
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.journalDisabled(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")
	opts, apiErr := model.ParseListOptions(r.URL.Query(), "status")
	if apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}
	if opts.Status != "" {
		if _, ok := model.ParseStepStatus(opts.Status); !ok {
			respondError(w, reqID, &model.APIError{Code: model.ErrValidation, Message: fmt.Sprintf("unknown step status %q", opts.Status)})
			return
		}
	}

	run, err := s.journal.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if run == nil {
		respondError(w, reqID, model.NewNotFoundError("run", id))
		return
	}

	steps, total, err := s.journal.ListSteps(r.Context(), id, opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if steps == nil {
		steps = []model.StepRecord{}
	}
	respondPage(w, reqID, steps, opts.Page(total))
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/me/coloop/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

func respondOK(w http.ResponseWriter, reqID string, data any) {
	writeEnvelope(w, http.StatusOK, model.OK(reqID, data, nil))
}

// respondPage writes one page of a journal listing.
func respondPage(w http.ResponseWriter, reqID string, data any, page *model.Page) {
	writeEnvelope(w, http.StatusOK, model.OK(reqID, data, page))
}

// respondError writes apiErr with the status its code maps to.
func respondError(w http.ResponseWriter, reqID string, apiErr *model.APIError) {
	writeEnvelope(w, apiErr.Code.HTTPStatus(), model.Failed(reqID, apiErr))
}

// respondInternal reports a journal or scheduler failure as INTERNAL_ERROR.
func respondInternal(w http.ResponseWriter, reqID string, err error) {
	respondError(w, reqID, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
}

func writeEnvelope(w http.ResponseWriter, status int, env model.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

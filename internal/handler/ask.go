package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/models"
	"github.com/queryhawk/queryhawk/internal/pipeline"
	"github.com/queryhawk/queryhawk/internal/results"
)

// AskHandler serves natural language analytics queries.
type AskHandler struct {
	orch *pipeline.Orchestrator
}

func NewAskHandler(orch *pipeline.Orchestrator) *AskHandler {
	return &AskHandler{orch: orch}
}

// Ask handles POST /api/v1/ask
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.Validate(); msg != "" {
		models.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.orch.ProcessQuery(r.Context(), req.Query, req.UserID, results.Format(req.ResponseFormat))
	if err != nil {
		models.WriteError(w, statusForError(err), err.Error())
		return
	}

	models.WriteJSON(w, http.StatusOK, models.AskResponse{
		Status: "success",
		Result: result,
	})
}

// statusForError maps pipeline error classes to HTTP status codes. A bad
// question is the caller's problem, a safety rejection is a policy denial,
// and an upstream outage is a 503.
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUngroundable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSafetyRejected):
		return http.StatusForbidden
	case errors.Is(err, pipeline.ErrUpstream):
		return http.StatusServiceUnavailable
	default:
		log.Error().Err(err).Msg("unclassified pipeline error")
		return http.StatusInternalServerError
	}
}

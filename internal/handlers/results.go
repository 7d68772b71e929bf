package handlers

import (
	"net/http"
	"strconv"

	"github.com/fitfighter/rigbridge/internal/models"
	"github.com/fitfighter/rigbridge/internal/store"
)

// ResultsHandler serves recorded session results for the leaderboard page.
type ResultsHandler struct {
	store *store.Store
}

// NewResultsHandler creates a ResultsHandler reading from st.
func NewResultsHandler(st *store.Store) *ResultsHandler {
	return &ResultsHandler{store: st}
}

// List handles GET /api/sessions/results?limit=N.
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.store.RecentResults(r.Context(), limit)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to fetch results", err)
		return
	}

	response := make([]models.SessionResultResponse, len(results))
	for i, res := range results {
		response[i] = models.SessionResultResponse{
			SessionID:   res.SessionID,
			Game:        res.Game,
			ReturnCode:  res.ReturnCode,
			DurationSec: res.DurationSec,
			FinishedAt:  res.FinishedAt,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

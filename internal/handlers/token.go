package handlers

import (
	"net/http"

	"github.com/fitfighter/rigbridge/internal/logging"
	"github.com/fitfighter/rigbridge/internal/models"
	"github.com/fitfighter/rigbridge/internal/services"
)

// TokenHandler serves short-lived MQTT credentials to browser clients.
type TokenHandler struct {
	tokens       *services.TokenService
	defaultRigID string
}

// NewTokenHandler creates a TokenHandler minting credentials for rigs,
// defaulting to defaultRigID when the query omits one.
func NewTokenHandler(tokens *services.TokenService, defaultRigID string) *TokenHandler {
	return &TokenHandler{tokens: tokens, defaultRigID: defaultRigID}
}

// MintToken handles GET /api/mqtt-token?rigId=...
func (h *TokenHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	rigID := r.URL.Query().Get("rigId")
	if rigID == "" {
		rigID = h.defaultRigID
	}
	if rigID == "" {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidRigID, "token requested without rig id")
		writeError(w, http.StatusBadRequest, "rigId required")
		return
	}

	ctx := logging.UpdateRequestAttrs(r.Context(), rigID)

	creds, err := h.tokens.MintCredentials(rigID)
	if err != nil {
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "failed to mint credentials", err)
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{
		Username: creds.Username,
		Password: creds.Password,
	})
}

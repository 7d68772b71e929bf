package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fitfighter/rigbridge/internal/command"
	"github.com/fitfighter/rigbridge/internal/logging"
	"github.com/fitfighter/rigbridge/internal/models"
	"github.com/fitfighter/rigbridge/internal/transport"
)

// CommandSender is the slice of the command publisher the handler needs.
type CommandSender interface {
	Send(ctx context.Context, rigID, cmd string, params map[string]any) error
}

// CommandHandler accepts rig commands over HTTP and forwards them to the
// broker. No retry happens here: a failed forward is surfaced so the game
// UI can prompt the player.
type CommandHandler struct {
	sender       CommandSender
	defaultRigID string
}

// NewCommandHandler creates a CommandHandler forwarding through sender.
func NewCommandHandler(sender CommandSender, defaultRigID string) *CommandHandler {
	return &CommandHandler{sender: sender, defaultRigID: defaultRigID}
}

// Forward handles POST /api/rig-command.
func (h *CommandHandler) Forward(w http.ResponseWriter, r *http.Request) {
	var req models.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rigID := req.RigID
	if rigID == "" {
		rigID = h.defaultRigID
	}
	ctx := logging.UpdateRequestAttrs(r.Context(), rigID)

	if req.Cmd == "" {
		logging.LogSecurityEvent(ctx, logging.SecurityEventBadCommand, "command request without cmd")
		writeError(w, http.StatusBadRequest, "cmd required in body")
		return
	}

	err := h.sender.Send(ctx, rigID, req.Cmd, req.Payload)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, models.CommandResponse{OK: true, Forwarded: true})
	case errors.Is(err, command.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, transport.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, "MQTT not connected")
	default:
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "publish failed", err)
	}
}

package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fitfighter/rigbridge/internal/rig"
)

// resultPayload mirrors the firmware's end-of-game publish:
// {event:"game_over", sessionId, game, returnCode, durationGame, timestamp}.
type resultPayload struct {
	Event       string `json:"event"`
	SessionID   string `json:"sessionId"`
	Game        string `json:"game"`
	ReturnCode  int    `json:"returnCode"`
	DurationSec int    `json:"durationGame"`
	Timestamp   string `json:"timestamp"`
}

// Recorder consumes session-end messages off the pipeline and persists
// them. Like the rest of the ingestion path it fails closed: a malformed
// result is logged and dropped, never propagated.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder writing to st.
func NewRecorder(st *Store) *Recorder {
	return &Recorder{store: st}
}

// HandleSessionEnd is a rig.SessionEndHandler.
func (r *Recorder) HandleSessionEnd(info rig.TopicInfo, payload []byte) {
	var res resultPayload
	if err := json.Unmarshal(payload, &res); err != nil {
		slog.Warn("discarded malformed session result",
			slog.String("session_id", info.SessionID),
			slog.Any("error", err))
		return
	}

	if res.SessionID == "" {
		res.SessionID = info.SessionID
	}
	if res.SessionID == "" {
		slog.Warn("discarded session result without session id")
		return
	}

	finishedAt := time.Now()
	if t, err := time.Parse(time.RFC3339, res.Timestamp); err == nil {
		finishedAt = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.store.RecordResult(ctx, SessionResult{
		SessionID:   res.SessionID,
		Game:        res.Game,
		ReturnCode:  res.ReturnCode,
		DurationSec: res.DurationSec,
		FinishedAt:  finishedAt,
	})
	if err != nil {
		slog.Error("failed to record session result",
			slog.String("session_id", res.SessionID),
			slog.Any("error", err))
		return
	}

	slog.Info("session result recorded",
		slog.String("session_id", res.SessionID),
		slog.String("game", res.Game),
		slog.Int("duration_sec", res.DurationSec))
}

package models

import "time"

// Credential exchange for the browser MQTT client
type TokenResponse struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Outbound rig commands
type CommandRequest struct {
	RigID   string         `json:"rigId,omitempty"`
	Cmd     string         `json:"cmd"`
	Payload map[string]any `json:"payload,omitempty"`
}

type CommandResponse struct {
	OK        bool `json:"ok"`
	Forwarded bool `json:"forwarded,omitempty"`
}

// Health check
type HealthResponse struct {
	Status string `json:"status"`
	MQTT   bool   `json:"mqtt"`
}

// Recorded game results
type SessionResultResponse struct {
	SessionID   string    `json:"sessionId"`
	Game        string    `json:"game"`
	ReturnCode  int       `json:"returnCode"`
	DurationSec int       `json:"durationGame"`
	FinishedAt  time.Time `json:"timestamp"`
}

// Error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Package rig implements the real-time physical-input pipeline for a
// FitFighter rig: topic classification, payload normalization, duplicate
// suppression and fan-out to gameplay listeners. One pipeline instance is
// bound to one rig session; nothing in this package is shared across rigs.
package rig

import "encoding/json"

// Edge indicates whether a pad event is a press or a release.
type Edge string

const (
	EdgeDown Edge = "down" // pad pressed
	EdgeUp   Edge = "up"   // pad released
)

// InputEvent is the canonical pad event delivered to gameplay listeners.
// It is immutable once constructed by the normalizer; consumers never see
// raw transport payloads.
type InputEvent struct {
	// Pad is the physical pad number, always 1..8 after normalization.
	Pad int

	// Timestamp is seconds since epoch (fractional). If the source payload
	// carried no timestamp this is the ingestion time and TimeSynthesized
	// is set, so a substituted time is never mistaken for a real one.
	Timestamp       float64
	TimeSynthesized bool

	// Edge defaults to EdgeDown when the source omits it.
	Edge Edge

	// Seq is a rig-session-scoped monotonically increasing number, present
	// only when the origin can guarantee monotonicity.
	Seq *int64

	// Origin is a free-form provenance tag ("hardware", "relay", ...).
	// Diagnostics only, never consulted for dedup decisions.
	Origin string

	// Raw is the untransformed payload, retained for debugging.
	Raw json.RawMessage
}

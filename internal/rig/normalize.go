package rig

import (
	"encoding/json"
	"time"
)

// padEnvelope is the union of every payload shape the producers have
// historically emitted. Three shapes are tolerated, as a closed list:
//
//	flat     {pad, ts?, edge?, seq?}                   (web relay)
//	wrapped  {type:"press", pad, ts?, origin?}         (older relay)
//	firmware {pad, action:"press", timestamp:RFC3339}  (pi publisher)
//
// A new producer shape means a new entry here, not looser parsing.
type padEnvelope struct {
	Type      string          `json:"type"`
	Pad       json.RawMessage `json:"pad"`
	TS        *float64        `json:"ts"`
	Edge      string          `json:"edge"`
	Seq       *int64          `json:"seq"`
	Origin    string          `json:"origin"`
	Action    string          `json:"action"`
	Timestamp string          `json:"timestamp"`
}

// Numeric timestamps this large are taken to be milliseconds and converted
// down to seconds (some producers sent Date.now() verbatim).
const millisecondThreshold = 1e11

// Normalize maps a raw pad-event payload onto the canonical InputEvent.
// The pad number is the one hard field gate: missing, non-numeric or
// outside 1..8 is a *ValidationError and the event is rejected. An
// envelope with a type other than "press" is not a pad event at all and is
// rejected the same way. Every other field degrades to documented
// defaults. A payload that is not valid JSON yields a *DecodeError.
func Normalize(payload []byte) (*InputEvent, error) {
	var env padEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if env.Type != "" && env.Type != "press" {
		return nil, &ValidationError{Field: "type", Reason: "unsupported envelope type " + env.Type}
	}

	pad, err := resolvePad(env.Pad)
	if err != nil {
		return nil, err
	}

	ev := &InputEvent{
		Pad:    pad,
		Edge:   resolveEdge(env),
		Seq:    env.Seq,
		Origin: env.Origin,
		Raw:    json.RawMessage(append([]byte(nil), payload...)),
	}

	switch {
	case env.TS != nil:
		ev.Timestamp = *env.TS
		if ev.Timestamp > millisecondThreshold {
			ev.Timestamp /= 1000
		}
	case env.Timestamp != "":
		t, err := time.Parse(time.RFC3339, env.Timestamp)
		if err != nil {
			// Unparseable source time falls back to ingestion time rather
			// than rejecting an otherwise valid press.
			ev.Timestamp = unixSeconds(time.Now())
			ev.TimeSynthesized = true
		} else {
			ev.Timestamp = unixSeconds(t)
		}
	default:
		ev.Timestamp = unixSeconds(time.Now())
		ev.TimeSynthesized = true
	}

	return ev, nil
}

func resolvePad(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, &ValidationError{Field: "pad", Reason: "missing"}
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, &ValidationError{Field: "pad", Reason: "not numeric"}
	}

	pad := int(n)
	if float64(pad) != n || pad < 1 || pad > 8 {
		return 0, &ValidationError{Field: "pad", Reason: "out of range 1..8"}
	}
	return pad, nil
}

// resolveEdge never rejects: the pad number is the one hard validation
// gate, so an unrecognized edge or action degrades to the press default.
func resolveEdge(env padEnvelope) Edge {
	// Firmware shape encodes the edge as an action verb.
	if env.Action == "release" {
		return EdgeUp
	}
	if env.Edge == string(EdgeUp) {
		return EdgeUp
	}
	return EdgeDown
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

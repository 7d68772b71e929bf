package rig

import "strings"

// Kind classifies an incoming transport message by its topic.
type Kind int

const (
	KindUnclassified Kind = iota
	KindPadEvent
	KindRigStatus
	KindSessionEnd
	KindCommandResponse
)

func (k Kind) String() string {
	switch k {
	case KindPadEvent:
		return "pad_event"
	case KindRigStatus:
		return "rig_status"
	case KindSessionEnd:
		return "session_end"
	case KindCommandResponse:
		return "command_response"
	default:
		return "unclassified"
	}
}

// TopicInfo carries the positional identifiers extracted from a topic.
// Only the fields bound by the matching pattern are set.
type TopicInfo struct {
	RigID     string
	DeviceID  string
	SessionID string
}

// Classify maps a topic to a message kind, extracting the identifiers bound
// by the matching pattern. The pattern table is fixed and the patterns are
// mutually exclusive by construction; the first match wins. Unknown topics
// come back as KindUnclassified so they stay observable downstream.
//
// The topic layout is part of the wire contract with the rig firmware:
//
//	rig/{rigId}/events            pad events relayed by the web path
//	rig/{rigId}/status            rig status
//	rig/{rigId}/command/response  acks for outbound commands
//	device/{deviceId}/btn         pad presses straight from the firmware
//	device/{deviceId}/status      firmware online/offline (retained)
//	device/{deviceId}/lwt         firmware last-will
//	session/{sessionId}/result    end-of-game result
func Classify(topic string) (Kind, TopicInfo) {
	parts := strings.Split(topic, "/")

	switch {
	case len(parts) == 3 && parts[0] == "rig" && parts[2] == "events":
		return KindPadEvent, TopicInfo{RigID: parts[1]}
	case len(parts) == 3 && parts[0] == "rig" && parts[2] == "status":
		return KindRigStatus, TopicInfo{RigID: parts[1]}
	case len(parts) == 4 && parts[0] == "rig" && parts[2] == "command" && parts[3] == "response":
		return KindCommandResponse, TopicInfo{RigID: parts[1]}
	case len(parts) == 3 && parts[0] == "device" && parts[2] == "btn":
		return KindPadEvent, TopicInfo{DeviceID: parts[1]}
	case len(parts) == 3 && parts[0] == "device" && (parts[2] == "status" || parts[2] == "lwt"):
		return KindRigStatus, TopicInfo{DeviceID: parts[1]}
	case len(parts) == 3 && parts[0] == "session" && parts[2] == "result":
		return KindSessionEnd, TopicInfo{SessionID: parts[1]}
	}

	return KindUnclassified, TopicInfo{}
}

package rig

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		topic string
		kind  Kind
		info  TopicInfo
	}{
		{"rig/rig-ff-001/events", KindPadEvent, TopicInfo{RigID: "rig-ff-001"}},
		{"rig/rig-ff-001/status", KindRigStatus, TopicInfo{RigID: "rig-ff-001"}},
		{"rig/rig-ff-001/command/response", KindCommandResponse, TopicInfo{RigID: "rig-ff-001"}},
		{"device/pi01/btn", KindPadEvent, TopicInfo{DeviceID: "pi01"}},
		{"device/pi01/status", KindRigStatus, TopicInfo{DeviceID: "pi01"}},
		{"device/pi01/lwt", KindRigStatus, TopicInfo{DeviceID: "pi01"}},
		{"session/abc123/result", KindSessionEnd, TopicInfo{SessionID: "abc123"}},
		{"rig/rig-ff-001/command", KindUnclassified, TopicInfo{}},
		{"session/abc123/heartrate", KindUnclassified, TopicInfo{}},
		{"some/random/topic", KindUnclassified, TopicInfo{}},
		{"rig", KindUnclassified, TopicInfo{}},
		{"", KindUnclassified, TopicInfo{}},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, info := Classify(tt.topic)
			if kind != tt.kind {
				t.Errorf("Classify(%q) kind = %v, want %v", tt.topic, kind, tt.kind)
			}
			if info != tt.info {
				t.Errorf("Classify(%q) info = %+v, want %+v", tt.topic, info, tt.info)
			}
		})
	}
}

func TestClassifyOutboundCommandStaysUnclassified(t *testing.T) {
	// The command topic is outbound only; the bridge never subscribes to
	// it, and if a message shows up there anyway it must not be mistaken
	// for an input event.
	kind, _ := Classify("rig/rig-ff-001/command")
	if kind != KindUnclassified {
		t.Errorf("command topic classified as %v, want unclassified", kind)
	}
}

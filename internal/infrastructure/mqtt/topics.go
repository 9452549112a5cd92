package mqtt

import "strings"

// DefaultTopicPrefix is the root of every Seestar topic.
const DefaultTopicPrefix = "seestar"

// Topics builds the MQTT topics shared by the core and the hardware-protocol
// bridge. The zero value uses DefaultTopicPrefix.
//
//	t := mqtt.Topics{}
//	t.Result("req-7f3a") // "seestar/result/req-7f3a"
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// State is the retained topic carrying the latest device snapshot.
//
// Example: seestar/state
func (t Topics) State() string {
	return t.root() + "/state"
}

// StateChanged carries one event per published snapshot, listing the
// fields that changed.
//
// Example: seestar/event/state_changed
func (t Topics) StateChanged() string {
	return t.root() + "/event/state_changed"
}

// Command is the inbound topic for one command request.
//
// Example: seestar/command/req-7f3a
func (t Topics) Command(requestID string) string {
	return t.root() + "/command/" + requestID
}

// AllCommands matches every inbound command request.
//
// Example: seestar/command/+
func (t Topics) AllCommands() string {
	return t.Command("+")
}

// Result carries the resolution of the command sent on Command(requestID).
//
// Example: seestar/result/req-7f3a
func (t Topics) Result(requestID string) string {
	return t.root() + "/result/" + requestID
}

// Health is the retained relay health report.
//
// Example: seestar/health
func (t Topics) Health() string {
	return t.root() + "/health"
}

// SystemStatus carries online/offline status and the Last Will.
//
// Example: seestar/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// All matches every topic under the prefix.
func (t Topics) All() string {
	return t.root() + "/#"
}

// RequestID returns the last level of a command or result topic, or "" if
// topic is not one of t's command topics.
func (t Topics) RequestID(topic string) string {
	id, ok := strings.CutPrefix(topic, t.root()+"/command/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

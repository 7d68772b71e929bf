// Package transport owns the MQTT session to the broker: credential
// exchange, keep-alive, subscription bookkeeping, reconnection and
// publishing. It is the only package that talks to the wire; everything
// else consumes its state observable and message callback.
package transport

// ConnState is the session's connection state. It is owned exclusively by
// the Session; other components only read it.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

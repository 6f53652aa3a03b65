package model

// ConnectionState is the live-feed connection state owned by the ingestor.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateStopped // terminal: reconnect budget exhausted or Stop() called
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

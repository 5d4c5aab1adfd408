package types

// ConnectionState of the RTK socket channel.
type ConnectionState string

func (s ConnectionState) String() string {
	return string(s)
}

const (
	ConnConnecting ConnectionState = "CONNECTING"
	ConnOpen       ConnectionState = "OPEN"
	ConnClosing    ConnectionState = "CLOSING"
	ConnClosed     ConnectionState = "CLOSED"
)

// ArbiterMode is the source-selection state of the location arbiter.
type ArbiterMode string

func (m ArbiterMode) String() string {
	return string(m)
}

const (
	ModeIdle                   ArbiterMode = "IDLE"
	ModeGPSOnly                ArbiterMode = "GPS_ONLY"
	ModeSocketPrimary          ArbiterMode = "SOCKET_PRIMARY"
	ModeSocketAwaitingFirstFix ArbiterMode = "SOCKET_PRIMARY_AWAITING_FIRST_FIX"
	ModeIPFallback             ArbiterMode = "IP_FALLBACK"
)
